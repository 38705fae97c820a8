package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"datasethub/internal/model"
)

type DatasetRepository struct {
	collection *mongo.Collection
}

func NewDatasetRepository(db *mongo.Database) *DatasetRepository {
	return &DatasetRepository{collection: db.Collection("datasets")}
}

func (r *DatasetRepository) Insert(ctx context.Context, record *model.DatasetRecord) error {
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("insert dataset failed: %w", err)
	}
	return nil
}

func (r *DatasetRepository) GetByDatasetID(ctx context.Context, datasetID string) (*model.DatasetRecord, error) {
	var record model.DatasetRecord
	err := r.collection.FindOne(ctx, bson.M{"dataset_id": datasetID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query dataset by id failed: %w", err)
	}
	return &record, nil
}

// DatasetUpdate carries the fields an edit rewrites. Info entries are merged
// into dataset_info key by key; absent entries stay untouched.
type DatasetUpdate struct {
	Files      model.FileManifest
	UploadType string
	Timestamp  time.Time
	Info       map[string]any
}

func (r *DatasetRepository) Update(ctx context.Context, datasetID string, update DatasetUpdate) error {
	set := bson.M{
		"files":       update.Files,
		"upload_type": update.UploadType,
		"timestamp":   update.Timestamp,
	}
	for key, value := range update.Info {
		set["dataset_info."+key] = value
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"dataset_id": datasetID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update dataset failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update dataset failed: no document matched %s", datasetID)
	}
	return nil
}

func (r *DatasetRepository) Delete(ctx context.Context, datasetID string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"dataset_id": datasetID}); err != nil {
		return fmt.Errorf("delete dataset failed: %w", err)
	}
	return nil
}
