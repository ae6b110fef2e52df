package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership links a user to an organization. Only active members may upload
// public (logo) attachments for the organization.
type Membership struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	OrganizationID primitive.ObjectID `bson:"organizationId" json:"organizationId"`
	Active         bool               `bson:"active" json:"active"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}
