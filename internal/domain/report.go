package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReportStatus tracks the review state of an expense report.
type ReportStatus string

const (
	ReportDraft         ReportStatus = "draft"
	ReportSubmitted     ReportStatus = "submitted"
	ReportNeedsRevision ReportStatus = "needs_revision"
	ReportAccepted      ReportStatus = "accepted"
	ReportRejected      ReportStatus = "rejected"
)

// Report is an expense report owned by a member of an organization.
// Attachments are uploaded against a report while it is editable.
type Report struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID        primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	OrganizationID primitive.ObjectID `bson:"organizationId" json:"organizationId"`
	Title          string             `bson:"title" json:"title"`
	Status         ReportStatus       `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IsEditable reports whether the owner may still attach or remove files.
func (r *Report) IsEditable() bool {
	return r.Status == ReportDraft || r.Status == ReportNeedsRevision
}
