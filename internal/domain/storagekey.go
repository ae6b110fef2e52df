package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Errors returned when the key context is incomplete for the requested visibility.
var (
	ErrKeyReportRequired       = errors.New("storage key for a private attachment requires a report id")
	ErrKeyOrganizationRequired = errors.New("storage key requires an organization id")
	ErrKeyFileNameRequired     = errors.New("storage key requires a file name")
)

// LogoContext is the context segment used for public, non-report attachments
// (organization logos).
const LogoContext = "logo"

// BuildStorageKey derives the object key for an attachment:
//
//	attachments/{visibility}/{organizationId}/{reportId|"logo"}/{hash}.{ext}
//
// The hash covers fileName, the context id, a caller-supplied random token and
// a timestamp, so concurrent uploads of identically named files never collide.
// The function is deterministic for fixed inputs; uniqueness comes entirely
// from the token (one fresh UUID per call at the call site).
func BuildStorageKey(visibility Visibility, organizationID, contextID, fileName, token string, now time.Time) (string, error) {
	if organizationID == "" {
		return "", ErrKeyOrganizationRequired
	}
	if fileName == "" {
		return "", ErrKeyFileNameRequired
	}
	if visibility == VisibilityPrivate && (contextID == "" || contextID == LogoContext) {
		return "", ErrKeyReportRequired
	}
	if contextID == "" {
		contextID = LogoContext
	}

	digest := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%d", fileName, contextID, token, now.UnixNano())))
	hash := hex.EncodeToString(digest[:])

	name := hash
	if ext := FileExtension(fileName); ext != "" {
		name = hash + "." + ext
	}
	return path.Join("attachments", string(visibility), organizationID, contextID, name), nil
}

// FileExtension returns the lowercased extension of name without the dot,
// or "" when there is none.
func FileExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	return strings.TrimPrefix(ext, ".")
}
