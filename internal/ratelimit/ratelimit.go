// Package ratelimit bounds request volume per authenticated principal using
// fixed windows, counted independently for upload-class and download-class
// operations.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Class selects which ceiling applies to a gated call.
type Class string

const (
	ClassUpload   Class = "upload"
	ClassDownload Class = "download"
)

var (
	ErrUnauthenticated = errors.New("rate limiter requires an authenticated principal")
	ErrLimited         = errors.New("rate limit exceeded")
)

// Config carries the per-class ceilings and the window length.
type Config struct {
	UploadLimit   int           `mapstructure:"upload_limit"`
	DownloadLimit int           `mapstructure:"download_limit"`
	Window        time.Duration `mapstructure:"window"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Defaults applied when a Config field is zero.
const (
	DefaultUploadLimit   = 10
	DefaultDownloadLimit = 100
	DefaultWindow        = time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

type windowKey struct {
	principal string
	class     Class
}

type window struct {
	start time.Time
	count int
}

// Limiter owns a concurrency-safe map from principal+class to window state.
// Construct one at process start and inject it into request handlers; the
// clock is injectable so tests can simulate window expiry without sleeping.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	windows map[windowKey]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter, filling zero Config fields with defaults.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.UploadLimit <= 0 {
		cfg.UploadLimit = DefaultUploadLimit
	}
	if cfg.DownloadLimit <= 0 {
		cfg.DownloadLimit = DefaultDownloadLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[windowKey]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one call for principalID in the given class. It returns
// ErrUnauthenticated for an empty principal and ErrLimited once the class
// ceiling for the current window is reached; the check and the increment
// happen under one lock so near-simultaneous calls cannot both sneak past
// the ceiling.
func (l *Limiter) Allow(principalID string, class Class) error {
	if principalID == "" {
		return ErrUnauthenticated
	}

	limit := l.cfg.UploadLimit
	if class == ClassDownload {
		limit = l.cfg.DownloadLimit
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	key := windowKey{principal: principalID, class: class}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	if w.count >= limit {
		return ErrLimited
	}
	w.count++
	return nil
}

// Sweep evicts windows whose interval has elapsed and returns how many were
// removed. Entries still inside their window are left alone, so a sweep can
// never lose counts for an active principal.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.windows, key)
			evicted++
		}
	}
	return evicted
}

// Run sweeps on the configured interval until ctx is cancelled. Intended to be
// started once as a background goroutine, bounding memory growth from
// unboundedly many distinct principals over time.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Len reports the number of live windows. Used by tests and diagnostics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
