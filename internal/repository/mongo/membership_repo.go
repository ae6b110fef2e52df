package mongo

import (
	"context"
	"errors"

	"github.com/move-ev/spesen-tool/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const membershipCollectionName = "memberships"

// mongoMembershipRepository implements repository.MembershipRepository
type mongoMembershipRepository struct {
	collection *mongo.Collection
}

// NewMongoMembershipRepository creates a new Membership repository backed by MongoDB.
func NewMongoMembershipRepository(db *mongo.Database) repository.MembershipRepository {
	return &mongoMembershipRepository{
		collection: db.Collection(membershipCollectionName),
	}
}

// IsActiveMember reports whether the user holds an active membership in the
// organization.
func (r *mongoMembershipRepository) IsActiveMember(ctx context.Context, userID, organizationID primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"userId":         userID,
		"organizationId": organizationID,
		"active":         true,
	}
	err := r.collection.FindOne(ctx, filter).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureMembershipIndexes creates necessary indexes for the memberships collection.
func EnsureMembershipIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "organizationId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
