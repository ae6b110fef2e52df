package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeCleanupRepo struct {
	repository.AttachmentRepository
	pending    []domain.Attachment
	deleted    []domain.Attachment
	removedIDs []primitive.ObjectID
}

func (f *fakeCleanupRepo) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Attachment, error) {
	var stale []domain.Attachment
	for _, a := range f.pending {
		if a.CreatedAt.Before(cutoff) {
			stale = append(stale, a)
		}
	}
	return stale, nil
}

func (f *fakeCleanupRepo) FindDeletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Attachment, error) {
	var expired []domain.Attachment
	for _, a := range f.deleted {
		if a.DeletedAt != nil && a.DeletedAt.Before(cutoff) {
			expired = append(expired, a)
		}
	}
	return expired, nil
}

func (f *fakeCleanupRepo) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	f.removedIDs = append(f.removedIDs, ids...)
	return int64(len(ids)), nil
}

func pendingAttachment(key string, age time.Duration) domain.Attachment {
	return domain.Attachment{
		ID:        primitive.NewObjectID(),
		Key:       key,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

func softDeletedAttachment(key string, age time.Duration) domain.Attachment {
	deletedAt := time.Now().UTC().Add(-age)
	return domain.Attachment{
		ID:        primitive.NewObjectID(),
		Key:       key,
		Status:    domain.StatusDeleted,
		CreatedAt: deletedAt.Add(-time.Hour),
		DeletedAt: &deletedAt,
	}
}

func TestCleanupPending_OnlyPastGracePeriod(t *testing.T) {
	abandoned := pendingAttachment("attachments/private/org/rep/old.pdf", 15*time.Minute)
	inFlight := pendingAttachment("attachments/private/org/rep/fresh.pdf", 5*time.Minute)
	repo := &fakeCleanupRepo{pending: []domain.Attachment{abandoned, inFlight}}
	store := newFakeStorage()

	result, err := NewCleanupService(repo, store).CleanupPendingAttachments(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.DeletedCount)
	assert.Equal(t, int64(1), result.StorageDeletedCount)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []primitive.ObjectID{abandoned.ID}, repo.removedIDs,
		"an upload still within its grace period must survive the sweep")
	assert.Equal(t, []string{abandoned.Key}, store.deleted)
}

func TestCleanupPending_NothingStale(t *testing.T) {
	repo := &fakeCleanupRepo{pending: []domain.Attachment{
		pendingAttachment("attachments/private/org/rep/fresh.pdf", time.Minute),
	}}

	result, err := NewCleanupService(repo, newFakeStorage()).CleanupPendingAttachments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.DeletedCount)
	assert.Empty(t, repo.removedIDs)
}

func TestCleanupPending_PartialStorageFailure(t *testing.T) {
	good := pendingAttachment("attachments/private/org/rep/a.pdf", time.Hour)
	bad := pendingAttachment("attachments/private/org/rep/b.pdf", time.Hour)
	repo := &fakeCleanupRepo{pending: []domain.Attachment{good, bad}}
	store := newFakeStorage()
	store.deleteErrs[bad.Key] = errors.New("access denied")

	result, err := NewCleanupService(repo, store).CleanupPendingAttachments(context.Background())
	require.NoError(t, err, "storage failures must not abort the batch")

	assert.Equal(t, int64(2), result.DeletedCount, "both rows are removed regardless of storage outcome")
	assert.Equal(t, int64(1), result.StorageDeletedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, bad.Key, result.Errors[0].Key)
	assert.Equal(t, "access denied", result.Errors[0].Err)
}

func TestCleanupDeleted_RetentionWindow(t *testing.T) {
	expired := softDeletedAttachment("attachments/private/org/rep/old.pdf", 91*24*time.Hour)
	retained := softDeletedAttachment("attachments/private/org/rep/recent.pdf", 30*24*time.Hour)
	repo := &fakeCleanupRepo{deleted: []domain.Attachment{expired, retained}}
	store := newFakeStorage()

	result, err := NewCleanupService(repo, store).CleanupDeletedAttachments(context.Background(), 90)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.DeletedCount)
	assert.Equal(t, []primitive.ObjectID{expired.ID}, repo.removedIDs)
	assert.Equal(t, []string{expired.Key}, store.deleted)
}

func TestCleanupDeleted_DefaultRetention(t *testing.T) {
	recent := softDeletedAttachment("attachments/private/org/rep/recent.pdf", 10*24*time.Hour)
	repo := &fakeCleanupRepo{deleted: []domain.Attachment{recent}}

	// A non-positive retention falls back to the 90-day default instead of
	// sweeping everything.
	result, err := NewCleanupService(repo, newFakeStorage()).CleanupDeletedAttachments(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.DeletedCount)
	assert.Empty(t, repo.removedIDs)
}

func TestCleanupDeleted_RowsRemovedDespiteStorageFailure(t *testing.T) {
	expired := softDeletedAttachment("attachments/private/org/rep/old.pdf", 100*24*time.Hour)
	repo := &fakeCleanupRepo{deleted: []domain.Attachment{expired}}
	store := newFakeStorage()
	store.deleteErrs[expired.Key] = errors.New("service unavailable")

	result, err := NewCleanupService(repo, store).CleanupDeletedAttachments(context.Background(), 90)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.DeletedCount)
	assert.Equal(t, int64(0), result.StorageDeletedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, expired.Key, result.Errors[0].Key)
}
