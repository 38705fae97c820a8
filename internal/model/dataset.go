package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CategoryRaw        = "raw"
	CategoryVectorized = "vectorized"
)

const (
	UploadTypeRaw        = "raw"
	UploadTypeVectorized = "vectorized"
	UploadTypeBoth       = "both"
)

// Categories returns the file categories in their canonical processing order.
func Categories() []string {
	return []string{CategoryRaw, CategoryVectorized}
}

// FileManifest maps a category to the archive URLs belonging to it. Once a
// record exists both category keys are present, possibly with empty lists.
type FileManifest map[string][]string

// Normalized returns a copy with both category keys present. Legacy records
// written before a category existed are healed on read.
func (m FileManifest) Normalized() FileManifest {
	out := FileManifest{}
	for k, v := range m {
		out[k] = v
	}
	for _, c := range Categories() {
		if out[c] == nil {
			out[c] = []string{}
		}
	}
	return out
}

// UploadType derives the dataset type from which categories hold files.
// With no files in either category the caller-supplied type stands.
func (m FileManifest) UploadType(fallback string) string {
	hasRaw := len(m[CategoryRaw]) > 0
	hasVectorized := len(m[CategoryVectorized]) > 0
	switch {
	case hasRaw && hasVectorized:
		return UploadTypeBoth
	case hasRaw:
		return UploadTypeRaw
	case hasVectorized:
		return UploadTypeVectorized
	default:
		return fallback
	}
}

// DatasetRecord is the persisted dataset document.
type DatasetRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DatasetID   string             `bson:"dataset_id" json:"dataset_id"`
	DatasetInfo map[string]any     `bson:"dataset_info" json:"dataset_info"`
	UploadType  string             `bson:"upload_type" json:"upload_type"`
	Files       FileManifest       `bson:"files" json:"files"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
	UID         string             `bson:"uid" json:"uid"`
	IsFolder    bool               `bson:"is_folder" json:"is_folder"`
}

// Username reads the owner username recorded in dataset_info.
func (r *DatasetRecord) Username() string {
	s, _ := r.DatasetInfo["username"].(string)
	return s
}

// Name reads the display name recorded in dataset_info.
func (r *DatasetRecord) Name() string {
	s, _ := r.DatasetInfo["name"].(string)
	return s
}
