package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/filetype"
	"github.com/move-ev/spesen-tool/internal/repository"
	"github.com/move-ev/spesen-tool/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxFileSize is the hard ceiling for a single attachment.
const MaxFileSize = 5 * 1024 * 1024 // 5 MiB

// --- Error Definitions ---

// Base sentinels for the error taxonomy; handlers map them to HTTP codes.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrContentMismatch  = errors.New("declared content type does not match stored content")
	ErrStorage          = errors.New("storage operation failed")
)

var (
	ErrFileTooLarge          = fmt.Errorf("%w: file exceeds the 5 MiB limit", ErrValidation)
	ErrContentTypeNotAllowed = fmt.Errorf("%w: content type is not allowed", ErrValidation)
	ErrExtensionBlocked      = fmt.Errorf("%w: file extension is not allowed", ErrValidation)

	ErrReportNotEditable = fmt.Errorf("%w: report is not in an editable state", ErrPermissionDenied)
	ErrNotReportOwner    = fmt.Errorf("%w: caller does not own this report", ErrPermissionDenied)
	ErrNotOrgMember      = fmt.Errorf("%w: caller is not an active member of this organization", ErrPermissionDenied)
	ErrKeyMismatch       = fmt.Errorf("%w: supplied key does not match the authorized upload", ErrPermissionDenied)

	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrReportNotFound     = errors.New("report not found")

	ErrAttachmentNotReady   = errors.New("attachment has not completed upload")
	ErrAttachmentNotPending = errors.New("attachment is not awaiting confirmation")
	ErrObjectMissing        = fmt.Errorf("%w: object was never uploaded", ErrStorage)
)

// allowedContentTypes is the allow-list of document/image types a client may
// declare. Aliases are normalized before lookup.
var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
}

// blockedExtensions is checked independently of the declared type, so a
// spoofed "image/png" name ending in .exe is rejected before any state exists.
var blockedExtensions = map[string]bool{
	"exe": true, "bat": true, "cmd": true, "com": true, "msi": true,
	"dll": true, "scr": true, "ps1": true, "sh": true, "vbs": true,
	"js": true, "jar": true, "app": true,
}

// Principal identifies the authenticated caller of a broker operation.
type Principal struct {
	ID   primitive.ObjectID
	Role domain.Role
}

// UploadRequest carries the client-declared file metadata for RequestUpload.
type UploadRequest struct {
	FileName       string
	FileSize       int64
	ContentType    string
	Visibility     domain.Visibility
	ReportID       *primitive.ObjectID
	OrganizationID *primitive.ObjectID
}

// UploadGrant is the broker's answer to a granted upload request.
type UploadGrant struct {
	AttachmentID primitive.ObjectID `json:"attachmentId"`
	UploadURL    string             `json:"uploadUrl"`
	Key          string             `json:"key"`
	ExpiresIn    int                `json:"expiresIn"` // seconds
}

// DownloadInfo is the broker's answer to a granted download request.
type DownloadInfo struct {
	URL         string `json:"url"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// --- Service Interface ---

// AttachmentService gates, provisions and validates the attachment upload
// state machine: pending -> {uploaded, failed}, uploaded -> deleted.
type AttachmentService interface {
	RequestUpload(ctx context.Context, caller Principal, req UploadRequest) (*UploadGrant, error)
	ConfirmUpload(ctx context.Context, caller Principal, attachmentID primitive.ObjectID, key string) error
	GetDownloadURL(ctx context.Context, caller Principal, attachmentID primitive.ObjectID) (*DownloadInfo, error)
	Delete(ctx context.Context, caller Principal, attachmentID primitive.ObjectID) error
}

// --- Service Implementation ---

type attachmentService struct {
	attachmentRepo repository.AttachmentRepository
	reportRepo     repository.ReportRepository
	membershipRepo repository.MembershipRepository
	fileStorage    storage.FileStorage
}

// NewAttachmentService creates a new instance of attachmentService.
func NewAttachmentService(
	attachmentRepo repository.AttachmentRepository,
	reportRepo repository.ReportRepository,
	membershipRepo repository.MembershipRepository,
	fileStorage storage.FileStorage,
) AttachmentService {
	return &attachmentService{
		attachmentRepo: attachmentRepo,
		reportRepo:     reportRepo,
		membershipRepo: membershipRepo,
		fileStorage:    fileStorage,
	}
}

// RequestUpload validates the declared file, authorizes the caller for the
// requested visibility context, persists a pending attachment row and returns
// a time-boxed presigned PUT URL scoped to exactly that key and content type.
func (s *attachmentService) RequestUpload(ctx context.Context, caller Principal, req UploadRequest) (*UploadGrant, error) {
	// 1. Eager validation: nothing is persisted before these pass.
	if err := validateUploadRequest(req); err != nil {
		return nil, err
	}

	// 2. Resolve the authorization context from visibility.
	var organizationID primitive.ObjectID
	contextID := domain.LogoContext
	switch req.Visibility {
	case domain.VisibilityPrivate:
		if req.ReportID == nil || *req.ReportID == primitive.NilObjectID {
			return nil, fmt.Errorf("%w: a private attachment requires a report id", ErrValidation)
		}
		report, err := s.loadEditableOwnedReport(ctx, caller, *req.ReportID)
		if err != nil {
			return nil, err
		}
		organizationID = report.OrganizationID
		contextID = report.ID.Hex()
	case domain.VisibilityPublic:
		if req.OrganizationID == nil || *req.OrganizationID == primitive.NilObjectID {
			return nil, fmt.Errorf("%w: a public attachment requires an organization id", ErrValidation)
		}
		active, err := s.membershipRepo.IsActiveMember(ctx, caller.ID, *req.OrganizationID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, ErrNotOrgMember
		}
		organizationID = *req.OrganizationID
	default:
		return nil, fmt.Errorf("%w: unknown visibility %q", ErrValidation, req.Visibility)
	}

	// 3. Derive the content-addressed storage key. The fresh UUID token makes
	// concurrent uploads of same-named files collision-free.
	key, err := domain.BuildStorageKey(req.Visibility, organizationID.Hex(), contextID, req.FileName, uuid.NewString(), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// 4. Issue the time-boxed write permission and persist the pending row.
	uploadURL, err := s.fileStorage.GeneratePresignedUploadURL(ctx, key, req.ContentType, storage.DefaultUploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: could not generate upload URL", ErrStorage)
	}

	attachment := &domain.Attachment{
		Key:            key,
		OriginalName:   req.FileName,
		ContentType:    req.ContentType,
		Size:           req.FileSize,
		Visibility:     req.Visibility,
		Status:         domain.StatusPending,
		UploadedByID:   caller.ID,
		OrganizationID: organizationID,
		ReportID:       req.ReportID,
	}
	attachmentID, err := s.attachmentRepo.Create(ctx, attachment)
	if err != nil {
		return nil, err
	}

	return &UploadGrant{
		AttachmentID: attachmentID,
		UploadURL:    uploadURL,
		Key:          key,
		ExpiresIn:    int(storage.DefaultUploadURLExpiry.Seconds()),
	}, nil
}

// ConfirmUpload trust-validates an upload after the client has pushed bytes
// directly to storage. The interval since RequestUpload is unbounded, so every
// authorization predicate is re-run here rather than trusted from request time.
func (s *attachmentService) ConfirmUpload(ctx context.Context, caller Principal, attachmentID primitive.ObjectID, key string) error {
	attachment, err := s.attachmentRepo.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAttachmentNotFound
		}
		return err
	}

	// 2. Only the uploader may confirm, and only for the key that was
	// actually authorized - never a different object.
	if attachment.UploadedByID != caller.ID {
		return ErrPermissionDenied
	}
	if attachment.Key != key {
		return ErrKeyMismatch
	}

	switch attachment.Status {
	case domain.StatusPending:
		// proceed
	case domain.StatusUploaded:
		// A retried confirmation for a correctly stored object is a no-op.
		return nil
	default:
		return ErrAttachmentNotPending
	}

	// 3. Re-check authorization; the report may have been finalized or
	// reassigned while the client was transferring bytes.
	if attachment.ReportID != nil && *attachment.ReportID != primitive.NilObjectID {
		if _, err := s.loadEditableOwnedReport(ctx, caller, *attachment.ReportID); err != nil {
			return err
		}
	}

	// 4. The object must actually exist before the row may advance.
	if err := s.fileStorage.ObjectExists(ctx, attachment.Key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.markFailed(ctx, attachment)
			return ErrObjectMissing
		}
		return fmt.Errorf("%w: existence probe failed", ErrStorage)
	}

	// 5. Trust-validate the stored bytes against the declared type.
	prefix, err := s.fileStorage.ReadPrefix(ctx, attachment.Key, filetype.PrefixLength)
	if err != nil {
		return fmt.Errorf("%w: could not read object prefix", ErrStorage)
	}
	result := filetype.Detect(prefix, attachment.ContentType)
	if !result.Valid {
		s.markFailed(ctx, attachment)
		log.Printf("SECURITY: content type mismatch for attachment %s (user %s): declared %q, detected %q",
			attachment.ID.Hex(), caller.ID.Hex(), attachment.ContentType, result.DetectedType)
		return fmt.Errorf("%w: %v", ErrContentMismatch, result.Err)
	}

	attachment.Status = domain.StatusUploaded
	return s.attachmentRepo.Update(ctx, attachment)
}

// GetDownloadURL issues a time-boxed read permission for a completed upload.
// Private attachments require the owning report's owner or an admin; public
// attachments are open to any authenticated caller.
func (s *attachmentService) GetDownloadURL(ctx context.Context, caller Principal, attachmentID primitive.ObjectID) (*DownloadInfo, error) {
	attachment, err := s.attachmentRepo.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttachmentNotFound
		}
		return nil, err
	}

	if attachment.Status != domain.StatusUploaded || attachment.IsSoftDeleted() {
		return nil, ErrAttachmentNotReady
	}

	if attachment.Visibility == domain.VisibilityPrivate {
		if err := s.authorizeRead(ctx, caller, attachment); err != nil {
			return nil, err
		}
	}

	url, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, attachment.Key, attachment.OriginalName, storage.DefaultDownloadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: could not generate download URL", ErrStorage)
	}

	return &DownloadInfo{
		URL:         url,
		FileName:    attachment.OriginalName,
		ContentType: attachment.ContentType,
		Size:        attachment.Size,
	}, nil
}

// Delete soft-deletes an uploaded attachment. The storage object is kept for
// the audit trail; physical removal is the cleanup sweeper's job.
func (s *attachmentService) Delete(ctx context.Context, caller Principal, attachmentID primitive.ObjectID) error {
	attachment, err := s.attachmentRepo.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAttachmentNotFound
		}
		return err
	}

	if attachment.IsSoftDeleted() {
		return ErrAttachmentNotFound
	}
	if attachment.Status != domain.StatusUploaded {
		return ErrAttachmentNotReady
	}

	if attachment.ReportID != nil && *attachment.ReportID != primitive.NilObjectID {
		if _, err := s.loadEditableOwnedReport(ctx, caller, *attachment.ReportID); err != nil {
			return err
		}
	} else if attachment.UploadedByID != caller.ID && caller.Role != domain.RoleAdmin {
		return ErrPermissionDenied
	}

	now := time.Now().UTC()
	attachment.Status = domain.StatusDeleted
	attachment.DeletedAt = &now
	attachment.DeletedByID = &caller.ID
	return s.attachmentRepo.Update(ctx, attachment)
}

// loadEditableOwnedReport fetches a report and enforces the two predicates
// every report-scoped mutation needs: the caller owns it and it is editable.
func (s *attachmentService) loadEditableOwnedReport(ctx context.Context, caller Principal, reportID primitive.ObjectID) (*domain.Report, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	if report.OwnerID != caller.ID {
		return nil, ErrNotReportOwner
	}
	if !report.IsEditable() {
		return nil, ErrReportNotEditable
	}
	return report, nil
}

// authorizeRead enforces download access for private attachments.
func (s *attachmentService) authorizeRead(ctx context.Context, caller Principal, attachment *domain.Attachment) error {
	if caller.Role == domain.RoleAdmin {
		return nil
	}
	if attachment.ReportID == nil || *attachment.ReportID == primitive.NilObjectID {
		if attachment.UploadedByID == caller.ID {
			return nil
		}
		return ErrPermissionDenied
	}
	report, err := s.reportRepo.GetByID(ctx, *attachment.ReportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReportNotFound
		}
		return err
	}
	if report.OwnerID != caller.ID {
		return ErrPermissionDenied
	}
	return nil
}

// markFailed advances the row to failed. A failure to record the failure is
// logged but not surfaced; the caller's error matters more.
func (s *attachmentService) markFailed(ctx context.Context, attachment *domain.Attachment) {
	attachment.Status = domain.StatusFailed
	if err := s.attachmentRepo.Update(ctx, attachment); err != nil {
		log.Printf("ERROR: failed to mark attachment %s as failed: %v", attachment.ID.Hex(), err)
	}
}

func validateUploadRequest(req UploadRequest) error {
	if req.FileName == "" {
		return fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if req.FileSize <= 0 {
		return fmt.Errorf("%w: file size must be positive", ErrValidation)
	}
	if req.FileSize > MaxFileSize {
		return ErrFileTooLarge
	}
	if !allowedContentTypes[filetype.Normalize(req.ContentType)] {
		return ErrContentTypeNotAllowed
	}
	if blockedExtensions[domain.FileExtension(req.FileName)] {
		return ErrExtensionBlocked
	}
	return nil
}
