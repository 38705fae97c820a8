package blobstore

import (
	"context"
	"fmt"
	"io"
)

// Store is addressable remote storage keyed by a hierarchical string path.
// Keys follow {username}/{dataset_name}/{category}.zip; deletion relies on
// that layout, so it must not change without a migration.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, overwrite bool) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
	ResolveURL(key string) string
}

// ArchiveKey builds the storage key for one category archive.
func ArchiveKey(username, datasetName, category string) string {
	return fmt.Sprintf("%s/%s/%s.zip", username, datasetName, category)
}

// DatasetPrefix is the exclusive namespace holding all of a dataset's blobs.
func DatasetPrefix(username, datasetName string) string {
	return fmt.Sprintf("%s/%s/", username, datasetName)
}
