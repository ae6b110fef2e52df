package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const attachmentCollectionName = "attachments"

// mongoAttachmentRepository implements repository.AttachmentRepository
type mongoAttachmentRepository struct {
	collection *mongo.Collection
}

// NewMongoAttachmentRepository creates a new Attachment repository backed by MongoDB.
func NewMongoAttachmentRepository(db *mongo.Database) repository.AttachmentRepository {
	return &mongoAttachmentRepository{
		collection: db.Collection(attachmentCollectionName),
	}
}

// Create inserts a new attachment record into the database.
func (r *mongoAttachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) (primitive.ObjectID, error) {
	if attachment.Key == "" ||
		attachment.UploadedByID == primitive.NilObjectID ||
		attachment.OrganizationID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("attachment requires key, uploadedById and organizationId")
	}

	attachment.ID = primitive.NewObjectID()
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}

	result, err := r.collection.InsertOne(ctx, attachment)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}

	return insertedID, nil
}

// GetByID retrieves an attachment by its ID.
func (r *mongoAttachmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Attachment, error) {
	var attachment domain.Attachment
	filter := bson.M{"_id": id}

	err := r.collection.FindOne(ctx, filter).Decode(&attachment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &attachment, nil
}

// Update replaces the stored attachment document.
func (r *mongoAttachmentRepository) Update(ctx context.Context, attachment *domain.Attachment) error {
	if attachment.ID == primitive.NilObjectID {
		return errors.New("attachment ID is required for update")
	}

	filter := bson.M{"_id": attachment.ID}
	result, err := r.collection.ReplaceOne(ctx, filter, attachment)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// FindPendingBefore returns attachments still pending whose createdAt is older
// than the cutoff. Used by the abandoned-upload sweep.
func (r *mongoAttachmentRepository) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Attachment, error) {
	filter := bson.M{
		"status":    domain.StatusPending,
		"createdAt": bson.M{"$lt": cutoff},
	}
	return r.find(ctx, filter)
}

// FindDeletedBefore returns soft-deleted attachments whose deletedAt is older
// than the cutoff. Used by the retention sweep.
func (r *mongoAttachmentRepository) FindDeletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Attachment, error) {
	filter := bson.M{
		"status":    domain.StatusDeleted,
		"deletedAt": bson.M{"$lt": cutoff},
	}
	return r.find(ctx, filter)
}

func (r *mongoAttachmentRepository) find(ctx context.Context, filter bson.M) ([]domain.Attachment, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var attachments []domain.Attachment
	if err := cursor.All(ctx, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}

// DeleteByIDs permanently removes the given attachment rows in one batch and
// returns the number of deleted documents.
func (r *mongoAttachmentRepository) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureAttachmentIndexes creates necessary indexes for the attachments collection.
func EnsureAttachmentIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Object keys are content-addressed and must be unique.
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Cutoff query of the abandoned-upload sweep.
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index(),
		},
		{
			// Cutoff query of the retention sweep.
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "deletedAt", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "reportId", Value: 1}},
			Options: options.Index(),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
