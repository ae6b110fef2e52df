// Package uploader drives the client side of the broker's two-phase upload
// protocol: request a presigned URL, stream the bytes straight to storage
// with progress reporting, then confirm.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Per-phase failure sentinels. Callers can tell a rejected permission request
// from a failed transfer from a failed confirmation.
var (
	ErrRequestFailed   = errors.New("upload permission request failed")
	ErrTransportFailed = errors.New("file transfer failed")
	ErrConfirmFailed   = errors.New("upload confirmation failed")
)

// Status is the phase of one in-flight upload.
type Status string

const (
	StatusRequesting Status = "requesting"
	StatusUploading  Status = "uploading"
	StatusConfirming Status = "confirming"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Retention of finished progress entries before they drop out of Snapshot.
const (
	successTTL = 2 * time.Second
	errorTTL   = 5 * time.Second
)

// Progress is the externally visible state of one upload.
type Progress struct {
	Key     string // tracking key, unique per transfer
	Status  Status
	Percent int
	Err     error // set when Status == StatusError
}

// File describes one file to upload.
type File struct {
	Name           string
	ContentType    string
	Size           int64
	Content        io.Reader
	Visibility     string // "private" (default) or "public"
	ReportID       string // required for private uploads
	OrganizationID string // required for public uploads
}

// BatchResult reports a multi-file upload: partial success is expected, one
// file's failure never cancels the others.
type BatchResult struct {
	AttachmentIDs []string
	Failed        []FileError
}

// FileError names a file that did not make it and why.
type FileError struct {
	FileName string
	Err      error
}

// Client talks to the attachment broker on behalf of one authenticated user.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	onProgress func(Progress)
	sem        *semaphore.Weighted

	mu      sync.Mutex
	entries map[string]*Progress
	now     func() time.Time
	after   func(time.Duration, func()) // injectable for tests
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithProgress installs the single callback all transfer state changes are
// funneled through.
func WithProgress(fn func(Progress)) Option {
	return func(c *Client) { c.onProgress = fn }
}

// WithMaxConcurrent caps the number of simultaneous transfers in UploadFiles.
// Zero (the default) means unlimited.
func WithMaxConcurrent(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(n)
		}
	}
}

// NewClient creates an upload client for the broker at baseURL, authenticating
// with the given bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		entries:    make(map[string]*Progress),
		now:        time.Now,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadFile runs one file through the full request / transfer / confirm
// sequence and returns the confirmed attachment id.
func (c *Client) UploadFile(ctx context.Context, file File) (string, error) {
	key := fmt.Sprintf("%s-%d", file.Name, c.now().UnixNano())

	c.update(key, StatusRequesting, 0, nil)
	grant, err := c.requestUpload(ctx, file)
	if err != nil {
		c.fail(key, err)
		return "", err
	}

	c.update(key, StatusUploading, 0, nil)
	if err := c.transfer(ctx, key, grant.UploadURL, file); err != nil {
		c.fail(key, err)
		return "", err
	}

	c.update(key, StatusConfirming, 100, nil)
	if err := c.confirmUpload(ctx, grant.AttachmentID, grant.Key); err != nil {
		c.fail(key, err)
		return "", err
	}

	c.update(key, StatusSuccess, 100, nil)
	c.expire(key, successTTL)
	return grant.AttachmentID, nil
}

// UploadFiles uploads all files concurrently and settles every outcome.
func (c *Client) UploadFiles(ctx context.Context, files []File) BatchResult {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result BatchResult
	)
	for _, file := range files {
		wg.Add(1)
		go func(f File) {
			defer wg.Done()
			if c.sem != nil {
				if err := c.sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					result.Failed = append(result.Failed, FileError{FileName: f.Name, Err: err})
					mu.Unlock()
					return
				}
				defer c.sem.Release(1)
			}
			id, err := c.UploadFile(ctx, f)
			mu.Lock()
			if err != nil {
				result.Failed = append(result.Failed, FileError{FileName: f.Name, Err: err})
			} else {
				result.AttachmentIDs = append(result.AttachmentIDs, id)
			}
			mu.Unlock()
		}(file)
	}
	wg.Wait()
	return result
}

// Snapshot returns the current progress entries, including recently finished
// ones that have not expired yet.
func (c *Client) Snapshot() []Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Progress, 0, len(c.entries))
	for _, p := range c.entries {
		out = append(out, *p)
	}
	return out
}

// --- phases ---

type uploadGrant struct {
	AttachmentID string `json:"attachmentId"`
	UploadURL    string `json:"uploadUrl"`
	Key          string `json:"key"`
	ExpiresIn    int    `json:"expiresIn"`
}

func (c *Client) requestUpload(ctx context.Context, file File) (*uploadGrant, error) {
	visibility := file.Visibility
	if visibility == "" {
		visibility = "private"
	}
	payload := map[string]interface{}{
		"fileName":    file.Name,
		"fileSize":    file.Size,
		"contentType": file.ContentType,
		"visibility":  visibility,
	}
	if file.ReportID != "" {
		payload["reportId"] = file.ReportID
	}
	if file.OrganizationID != "" {
		payload["organizationId"] = file.OrganizationID
	}

	var grant uploadGrant
	if err := c.postJSON(ctx, c.baseURL+"/api/v1/attachments/request-upload", payload, &grant); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return &grant, nil
}

// transfer PUTs the raw bytes to the presigned URL, reporting percent progress
// from the byte counter as the body is consumed.
func (c *Client) transfer(ctx context.Context, key, uploadURL string, file File) error {
	body := &progressReader{
		r:     file.Content,
		total: file.Size,
		report: func(percent int) {
			c.update(key, StatusUploading, percent, nil)
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	req.Header.Set("Content-Type", file.ContentType)
	req.ContentLength = file.Size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: storage responded %s", ErrTransportFailed, resp.Status)
	}
	return nil
}

func (c *Client) confirmUpload(ctx context.Context, attachmentID, objectKey string) error {
	url := fmt.Sprintf("%s/api/v1/attachments/%s/confirm", c.baseURL, attachmentID)
	payload := map[string]interface{}{"key": objectKey}
	if err := c.postJSON(ctx, url, payload, nil); err != nil {
		// Propagates the broker's specific rejection reason (e.g. a
		// content-type mismatch) to the caller.
		return fmt.Errorf("%w: %v", ErrConfirmFailed, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("server responded %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server responded %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// --- progress tracking ---

func (c *Client) update(key string, status Status, percent int, err error) {
	c.mu.Lock()
	p, ok := c.entries[key]
	if !ok {
		p = &Progress{Key: key}
		c.entries[key] = p
	}
	p.Status = status
	p.Percent = percent
	p.Err = err
	snapshot := *p
	c.mu.Unlock()

	if c.onProgress != nil {
		c.onProgress(snapshot)
	}
}

func (c *Client) fail(key string, err error) {
	c.mu.Lock()
	percent := 0
	if p, ok := c.entries[key]; ok {
		percent = p.Percent
	}
	c.mu.Unlock()

	c.update(key, StatusError, percent, err)
	c.expire(key, errorTTL)
}

func (c *Client) expire(key string, after time.Duration) {
	c.after(after, func() {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	})
}

// progressReader counts transferred bytes and reports whole-percent steps.
type progressReader struct {
	r           io.Reader
	total       int64
	read        int64
	lastPercent int
	report      func(percent int)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && pr.total > 0 {
		pr.read += int64(n)
		percent := int(pr.read * 100 / pr.total)
		if percent > 100 {
			percent = 100
		}
		if percent != pr.lastPercent {
			pr.lastPercent = percent
			pr.report(percent)
		}
	}
	return n, err
}
