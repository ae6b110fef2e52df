package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Visibility controls who may obtain a download URL for an attachment.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// AttachmentStatus tracks the upload lifecycle. Transitions only ever advance:
// pending -> uploaded, pending -> failed, uploaded -> deleted.
type AttachmentStatus string

const (
	StatusPending  AttachmentStatus = "pending"
	StatusUploaded AttachmentStatus = "uploaded"
	StatusFailed   AttachmentStatus = "failed"
	StatusDeleted  AttachmentStatus = "deleted"
)

// Attachment stores metadata about a file evidence record (receipt, image,
// organization logo). The actual bytes live in object storage under Key.
type Attachment struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Key            string              `bson:"key" json:"-"` // unique object key in the bucket - internal use
	OriginalName   string              `bson:"originalName" json:"originalName"`
	ContentType    string              `bson:"contentType" json:"contentType"` // MIME type declared by the client
	Size           int64               `bson:"size" json:"size"`
	Visibility     Visibility          `bson:"visibility" json:"visibility"`
	Status         AttachmentStatus    `bson:"status" json:"status"`
	UploadedByID   primitive.ObjectID  `bson:"uploadedById" json:"uploadedById"`
	OrganizationID primitive.ObjectID  `bson:"organizationId" json:"organizationId"`
	ReportID       *primitive.ObjectID `bson:"reportId,omitempty" json:"reportId,omitempty"` // upload context for private files
	ExpenseID      *primitive.ObjectID `bson:"expenseId,omitempty" json:"expenseId,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	DeletedAt      *time.Time          `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedByID    *primitive.ObjectID `bson:"deletedById,omitempty" json:"-"`
}

// IsSoftDeleted reports whether the attachment has been soft-deleted.
func (a *Attachment) IsSoftDeleted() bool {
	return a.Status == StatusDeleted || a.DeletedAt != nil
}
