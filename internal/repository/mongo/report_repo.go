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

const reportCollectionName = "reports"

// mongoReportRepository implements repository.ReportRepository
type mongoReportRepository struct {
	collection *mongo.Collection
}

// NewMongoReportRepository creates a new Report repository backed by MongoDB.
func NewMongoReportRepository(db *mongo.Database) repository.ReportRepository {
	return &mongoReportRepository{
		collection: db.Collection(reportCollectionName),
	}
}

// Create inserts a new expense report.
func (r *mongoReportRepository) Create(ctx context.Context, report *domain.Report) (primitive.ObjectID, error) {
	if report.OwnerID == primitive.NilObjectID || report.OrganizationID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("report requires ownerId and organizationId")
	}

	report.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	if report.Status == "" {
		report.Status = domain.ReportDraft
	}

	result, err := r.collection.InsertOne(ctx, report)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves a report by its ID.
func (r *mongoReportRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Report, error) {
	var report domain.Report
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// GetByOwnerID retrieves all reports owned by a user, newest first.
func (r *mongoReportRepository) GetByOwnerID(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Report, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"ownerId": ownerID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reports []domain.Report
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Update replaces the stored report document.
func (r *mongoReportRepository) Update(ctx context.Context, report *domain.Report) error {
	if report.ID == primitive.NilObjectID {
		return errors.New("report ID is required for update")
	}
	report.UpdatedAt = time.Now().UTC()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": report.ID}, report)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureReportIndexes creates necessary indexes for the reports collection.
func EnsureReportIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "organizationId", Value: 1}},
			Options: options.Index(),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
