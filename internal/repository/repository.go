package repository

import (
	"context"
	"time"

	"github.com/move-ev/spesen-tool/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// ReportRepository defines the interface for interacting with expense reports.
type ReportRepository interface {
	Create(ctx context.Context, report *domain.Report) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Report, error)
	GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Report, error)
	Update(ctx context.Context, report *domain.Report) error
}

// AttachmentRepository defines the interface for attachment metadata,
// including the cutoff queries and batch deletes the cleanup jobs rely on.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, error)
	Update(ctx context.Context, attachment *domain.Attachment) error
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Attachment, error)
	FindDeletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Attachment, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

// MembershipRepository answers organization membership questions.
type MembershipRepository interface {
	IsActiveMember(ctx context.Context, userID, organizationID primitive.ObjectID) (bool, error)
}
