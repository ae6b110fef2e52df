package storage

import (
	"context"
	"errors"
	"time"
)

// Default expiry durations for presigned URLs.
const (
	DefaultUploadURLExpiry   = 300 * time.Second
	DefaultDownloadURLExpiry = 3600 * time.Second
)

// ErrObjectNotFound is returned by probes and reads when the key does not
// exist in the bucket.
var ErrObjectNotFound = errors.New("object not found in storage")

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that allows a PUT
	// request scoped to exactly this object key and content type.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows a GET
	// request for the object. fileName is used as the content-disposition
	// filename hint so downloads keep the original name.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, fileName string, expires time.Duration) (string, error)

	// ObjectExists probes whether the object is actually present in the
	// bucket. Returns ErrObjectNotFound when it is not.
	ObjectExists(ctx context.Context, objectKey string) error

	// ReadPrefix fetches up to n leading bytes of the object via a ranged
	// read, without buffering the whole object.
	ReadPrefix(ctx context.Context, objectKey string, n int) ([]byte, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}
