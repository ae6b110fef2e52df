package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/repository"
	"github.com/move-ev/spesen-tool/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// PendingGracePeriod exceeds the upload URL expiry, so the sweep only
	// catches uploads that can no longer complete.
	PendingGracePeriod = 10 * time.Minute

	// DefaultRetentionDays is how long soft-deleted attachments are kept
	// before permanent removal.
	DefaultRetentionDays = 90
)

// CleanupError records one storage object that could not be deleted.
type CleanupError struct {
	Key string `json:"key"`
	Err string `json:"error"`
}

// CleanupResult is the typed batch outcome of one sweep: what was removed and
// which storage deletions failed. Storage failures never abort the batch.
type CleanupResult struct {
	DeletedCount        int64          `json:"deletedCount"`
	StorageDeletedCount int64          `json:"storageDeletedCount"`
	Errors              []CleanupError `json:"errors,omitempty"`
}

// CleanupService reclaims storage and database records for uploads that were
// abandoned or soft-deleted past retention. Both jobs are idempotent and safe
// to run concurrently with themselves and with live broker traffic: they
// select by time cutoff and tolerate "nothing matched" on a re-run.
type CleanupService interface {
	CleanupPendingAttachments(ctx context.Context) (*CleanupResult, error)
	CleanupDeletedAttachments(ctx context.Context, retentionDays int) (*CleanupResult, error)
}

type cleanupService struct {
	attachmentRepo repository.AttachmentRepository
	fileStorage    storage.FileStorage
}

// NewCleanupService creates a new instance of cleanupService.
func NewCleanupService(attachmentRepo repository.AttachmentRepository, fileStorage storage.FileStorage) CleanupService {
	return &cleanupService{
		attachmentRepo: attachmentRepo,
		fileStorage:    fileStorage,
	}
}

// CleanupPendingAttachments removes attachments stuck in pending past the
// grace period: database rows first (one batch), then the storage objects in
// parallel, best effort.
func (s *cleanupService) CleanupPendingAttachments(ctx context.Context) (*CleanupResult, error) {
	cutoff := time.Now().UTC().Add(-PendingGracePeriod)
	stale, err := s.attachmentRepo.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return &CleanupResult{}, nil
	}

	deleted, err := s.attachmentRepo.DeleteByIDs(ctx, attachmentIDs(stale))
	if err != nil {
		return nil, err
	}

	storageDeleted, cleanupErrs := s.deleteObjects(ctx, stale)
	result := &CleanupResult{
		DeletedCount:        deleted,
		StorageDeletedCount: storageDeleted,
		Errors:              cleanupErrs,
	}
	log.Printf("INFO: pending-attachment sweep removed %d rows, %d objects (%d storage errors)",
		result.DeletedCount, result.StorageDeletedCount, len(result.Errors))
	return result, nil
}

// CleanupDeletedAttachments permanently removes soft-deleted attachments past
// the retention window. Storage objects go first; the rows are removed even
// when individual storage deletions fail, because database cleanliness takes
// priority over guaranteed storage reclamation.
func (s *cleanupService) CleanupDeletedAttachments(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	expired, err := s.attachmentRepo.FindDeletedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return &CleanupResult{}, nil
	}

	storageDeleted, cleanupErrs := s.deleteObjects(ctx, expired)

	deleted, err := s.attachmentRepo.DeleteByIDs(ctx, attachmentIDs(expired))
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{
		DeletedCount:        deleted,
		StorageDeletedCount: storageDeleted,
		Errors:              cleanupErrs,
	}
	log.Printf("INFO: deleted-attachment sweep removed %d rows, %d objects (%d storage errors)",
		result.DeletedCount, result.StorageDeletedCount, len(result.Errors))
	return result, nil
}

// deleteObjects fans out storage deletions and settles them all, collecting a
// per-object error for every failure instead of aborting.
func (s *cleanupService) deleteObjects(ctx context.Context, attachments []domain.Attachment) (int64, []CleanupError) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		deleted int64
		errs    []CleanupError
	)
	for _, a := range attachments {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := s.fileStorage.DeleteObject(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, CleanupError{Key: key, Err: err.Error()})
				mu.Unlock()
				return
			}
			mu.Lock()
			deleted++
			mu.Unlock()
		}(a.Key)
	}
	wg.Wait()
	return deleted, errs
}

func attachmentIDs(attachments []domain.Attachment) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(attachments))
	for i, a := range attachments {
		ids[i] = a.ID
	}
	return ids
}
