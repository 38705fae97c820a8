package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"datasethub/internal/model"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection("user_profiles")}
}

func (r *UserRepository) GetByUID(ctx context.Context, uid string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.collection.FindOne(ctx, bson.M{"uid": uid}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user by uid failed: %w", err)
	}
	return &profile, nil
}

// AppendDataset records datasetID in the owner's dataset index. $addToSet
// keeps re-uploads of the same dataset idempotent.
func (r *UserRepository) AppendDataset(ctx context.Context, uid, datasetID string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"uid": uid},
		bson.M{"$addToSet": bson.M{"datasets": datasetID}},
	)
	if err != nil {
		return fmt.Errorf("append dataset to user index failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("append dataset to user index failed: no profile for uid %s", uid)
	}
	return nil
}

func (r *UserRepository) RemoveDataset(ctx context.Context, uid, datasetID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"uid": uid},
		bson.M{"$pull": bson.M{"datasets": datasetID}},
	)
	if err != nil {
		return fmt.Errorf("remove dataset from user index failed: %w", err)
	}
	return nil
}
