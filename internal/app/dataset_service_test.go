package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"datasethub/internal/blobstore"
	"datasethub/internal/model"
	"datasethub/internal/repository"
	"datasethub/internal/workspace"
)

type fakeUserStore struct {
	profiles  map[string]*model.UserProfile
	appended  []string
	removed   []string
	appendErr error
}

func (f *fakeUserStore) GetByUID(_ context.Context, uid string) (*model.UserProfile, error) {
	return f.profiles[uid], nil
}

func (f *fakeUserStore) AppendDataset(_ context.Context, uid, datasetID string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, uid+":"+datasetID)
	return nil
}

func (f *fakeUserStore) RemoveDataset(_ context.Context, uid, datasetID string) error {
	f.removed = append(f.removed, uid+":"+datasetID)
	return nil
}

type fakeDatasetStore struct {
	records   map[string]*model.DatasetRecord
	updates   map[string]repository.DatasetUpdate
	deleted   []string
	insertErr error
	updateErr error
}

func newFakeDatasetStore() *fakeDatasetStore {
	return &fakeDatasetStore{
		records: map[string]*model.DatasetRecord{},
		updates: map[string]repository.DatasetUpdate{},
	}
}

func (f *fakeDatasetStore) Insert(_ context.Context, record *model.DatasetRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records[record.DatasetID] = record
	return nil
}

func (f *fakeDatasetStore) GetByDatasetID(_ context.Context, datasetID string) (*model.DatasetRecord, error) {
	return f.records[datasetID], nil
}

func (f *fakeDatasetStore) Update(_ context.Context, datasetID string, update repository.DatasetUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[datasetID] = update
	return nil
}

func (f *fakeDatasetStore) Delete(_ context.Context, datasetID string) error {
	f.deleted = append(f.deleted, datasetID)
	delete(f.records, datasetID)
	return nil
}

type fakeCache struct {
	records     map[string]*model.DatasetRecord
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{records: map[string]*model.DatasetRecord{}}
}

func (f *fakeCache) GetRecord(_ context.Context, datasetID string) (*model.DatasetRecord, bool, error) {
	record, ok := f.records[datasetID]
	return record, ok, nil
}

func (f *fakeCache) SetRecord(_ context.Context, record *model.DatasetRecord) error {
	f.records[record.DatasetID] = record
	return nil
}

func (f *fakeCache) DeleteRecord(_ context.Context, datasetID string) error {
	delete(f.records, datasetID)
	f.invalidated = append(f.invalidated, datasetID)
	return nil
}

type fakePublisher struct {
	events []model.DatasetEvent
}

func (f *fakePublisher) Publish(_ context.Context, event model.DatasetEvent) error {
	f.events = append(f.events, event)
	return nil
}

type serviceFixture struct {
	users     *fakeUserStore
	datasets  *fakeDatasetStore
	blobs     *blobstore.MemoryStore
	cache     *fakeCache
	publisher *fakePublisher
	service   *DatasetService
}

func newFixture() *serviceFixture {
	users := &fakeUserStore{profiles: map[string]*model.UserProfile{
		"uid-1": {UID: "uid-1", Username: "alice"},
	}}
	datasets := newFakeDatasetStore()
	blobs := blobstore.NewMemoryStore()
	cache := newFakeCache()
	publisher := &fakePublisher{}
	service := NewDatasetService(users, datasets, blobs, cache, publisher, afero.NewMemMapFs())
	return &serviceFixture{
		users:     users,
		datasets:  datasets,
		blobs:     blobs,
		cache:     cache,
		publisher: publisher,
		service:   service,
	}
}

func rawInput(files map[string][]workspace.FileEntry) CreateDatasetInput {
	return CreateDatasetInput{
		UID:        "uid-1",
		UploadType: model.UploadTypeRaw,
		Metadata: DatasetMetadata{Info: map[string]any{
			"name":    "Iris",
			"license": "MIT",
		}},
		Files: files,
	}
}

func archiveEntries(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestCreateDataset(t *testing.T) {
	fx := newFixture()

	result, err := fx.service.Create(context.Background(), rawInput(map[string][]workspace.FileEntry{
		model.CategoryRaw: {{Path: "flowers.csv", Data: []byte("sepal,petal\n")}},
	}))
	require.NoError(t, err)

	require.Equal(t, []string{"memory://datasets/alice/iris/raw.zip"}, result.URLs)
	require.Equal(t, model.UploadTypeRaw, result.Record.UploadType)
	require.Equal(t, "alice", result.Record.Username())
	require.Equal(t, []string{"memory://datasets/alice/iris/raw.zip"}, result.Record.Files[model.CategoryRaw])
	require.Empty(t, result.Record.Files[model.CategoryVectorized])

	data, ok := fx.blobs.Get("alice/iris/raw.zip")
	require.True(t, ok)
	require.Equal(t, []string{"raw/flowers.csv"}, archiveEntries(t, data))

	require.Contains(t, fx.datasets.records, result.Record.DatasetID)
	require.Equal(t, []string{"uid-1:" + result.Record.DatasetID}, fx.users.appended)

	require.Len(t, fx.publisher.events, 1)
	require.Equal(t, model.EventActionCreate, fx.publisher.events[0].Action)
	require.Equal(t, "raw", fx.publisher.events[0].Categories)
}

func TestCreateDatasetFolderPreservesPaths(t *testing.T) {
	fx := newFixture()

	input := rawInput(map[string][]workspace.FileEntry{
		model.CategoryRaw: {
			{Path: "data/train/x.csv", Data: []byte("1\n")},
			{Path: "data/test/y.csv", Data: []byte("2\n")},
		},
	})
	input.IsFolder = true

	result, err := fx.service.Create(context.Background(), input)
	require.NoError(t, err)
	require.True(t, result.Record.IsFolder)

	data, ok := fx.blobs.Get("alice/iris/raw.zip")
	require.True(t, ok)
	require.Equal(t,
		[]string{"raw/data/test/y.csv", "raw/data/train/x.csv"},
		archiveEntries(t, data))
}

func TestCreateDatasetBothCategories(t *testing.T) {
	fx := newFixture()

	input := CreateDatasetInput{
		UID:        "uid-1",
		UploadType: model.UploadTypeBoth,
		Metadata: DatasetMetadata{
			Info:           map[string]any{"name": "Iris Embeddings", "license": "MIT"},
			Dimensions:     768,
			VectorDatabase: "milvus",
			ModelName:      "all-minilm",
		},
		Files: map[string][]workspace.FileEntry{
			model.CategoryRaw:        {{Path: "raw.csv", Data: []byte("r")}},
			model.CategoryVectorized: {{Path: "vectors.bin", Data: []byte{1, 2}}},
		},
	}

	result, err := fx.service.Create(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, model.UploadTypeBoth, result.Record.UploadType)
	require.Equal(t, 768, result.Record.DatasetInfo["dimensions"])
	require.Equal(t, "milvus", result.Record.DatasetInfo["vector_database"])
	require.Equal(t,
		[]string{"alice/iris_embeddings/raw.zip", "alice/iris_embeddings/vectorized.zip"},
		fx.blobs.Keys("alice/iris_embeddings/"))
	require.Equal(t, []string{
		"memory://datasets/alice/iris_embeddings/raw.zip",
		"memory://datasets/alice/iris_embeddings/vectorized.zip",
	}, result.URLs)
}

func TestCreateDatasetHonorsCallerDatasetID(t *testing.T) {
	fx := newFixture()

	input := rawInput(map[string][]workspace.FileEntry{
		model.CategoryRaw: {{Path: "a.csv", Data: []byte("x")}},
	})
	input.Metadata.Info["datasetId"] = "ds-fixed"

	result, err := fx.service.Create(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "ds-fixed", result.Record.DatasetID)
}

func TestCreateDatasetUserNotFound(t *testing.T) {
	fx := newFixture()

	input := rawInput(nil)
	input.UID = "uid-missing"

	_, err := fx.service.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateDatasetValidatesBeforeIO(t *testing.T) {
	fx := newFixture()

	cases := []struct {
		name string
		mut  func(*CreateDatasetInput)
	}{
		{"missing name", func(in *CreateDatasetInput) { delete(in.Metadata.Info, "name") }},
		{"missing license", func(in *CreateDatasetInput) { delete(in.Metadata.Info, "license") }},
		{"unknown type", func(in *CreateDatasetInput) { in.UploadType = "archive" }},
		{"vectorized without dimensions", func(in *CreateDatasetInput) {
			in.UploadType = model.UploadTypeVectorized
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := rawInput(map[string][]workspace.FileEntry{
				model.CategoryRaw: {{Path: "a.csv", Data: []byte("x")}},
			})
			tc.mut(&input)

			_, err := fx.service.Create(context.Background(), input)
			require.ErrorIs(t, err, ErrInvalidRequest)
			require.Empty(t, fx.blobs.Keys(""))
			require.Empty(t, fx.datasets.records)
		})
	}
}

func TestCreateDatasetCompensatesOnInsertFailure(t *testing.T) {
	fx := newFixture()
	fx.datasets.insertErr = errors.New("mongo down")

	_, err := fx.service.Create(context.Background(), rawInput(map[string][]workspace.FileEntry{
		model.CategoryRaw: {{Path: "a.csv", Data: []byte("x")}},
	}))
	require.ErrorIs(t, err, ErrPersistenceFailure)
	require.Empty(t, fx.blobs.Keys("alice/iris/"))
	require.Empty(t, fx.users.appended)
}

func TestCreateDatasetRollsBackRecordOnIndexFailure(t *testing.T) {
	fx := newFixture()
	fx.users.appendErr = errors.New("index write failed")

	_, err := fx.service.Create(context.Background(), rawInput(map[string][]workspace.FileEntry{
		model.CategoryRaw: {{Path: "a.csv", Data: []byte("x")}},
	}))
	require.ErrorIs(t, err, ErrPersistenceFailure)
	require.Empty(t, fx.blobs.Keys("alice/iris/"))
	require.Empty(t, fx.datasets.records)
	require.Len(t, fx.datasets.deleted, 1)
}

func seedRecord(fx *serviceFixture) *model.DatasetRecord {
	record := &model.DatasetRecord{
		DatasetID: "ds-1",
		DatasetInfo: map[string]any{
			"name":     "Iris",
			"username": "alice",
			"license":  "MIT",
		},
		UploadType: model.UploadTypeRaw,
		Files: model.FileManifest{
			model.CategoryRaw: []string{"memory://datasets/alice/iris/raw.zip"},
		},
		UID: "uid-1",
	}
	fx.datasets.records[record.DatasetID] = record
	_, _ = fx.blobs.Put(context.Background(), "alice/iris/raw.zip", bytes.NewReader([]byte("old")), true)
	return record
}

func TestEditDatasetReplacesCategory(t *testing.T) {
	fx := newFixture()
	seedRecord(fx)

	result, err := fx.service.Edit(context.Background(), EditDatasetInput{
		DatasetID: "ds-1",
		Metadata: DatasetMetadata{Info: map[string]any{
			"description": "updated",
			"name":        "Renamed",
		}},
		Files: map[string][]workspace.FileEntry{
			model.CategoryVectorized: {{Path: "vectors.bin", Data: []byte{9}}},
		},
	})
	require.NoError(t, err)

	require.Equal(t, model.UploadTypeBoth, result.Record.UploadType)
	require.Equal(t, []string{"memory://datasets/alice/iris/vectorized.zip"}, result.URLs)
	require.Equal(t,
		[]string{"alice/iris/raw.zip", "alice/iris/vectorized.zip"},
		fx.blobs.Keys("alice/iris/"))

	update := fx.datasets.updates["ds-1"]
	require.Equal(t, "updated", update.Info["description"])
	require.NotContains(t, update.Info, "name")
	require.Equal(t, "Iris", result.Record.Name())
	require.Equal(t, []string{"ds-1"}, fx.cache.invalidated)

	require.Len(t, fx.publisher.events, 1)
	require.Equal(t, model.EventActionEdit, fx.publisher.events[0].Action)
	require.Equal(t, "vectorized", fx.publisher.events[0].Categories)
}

func TestEditDatasetUsesCachedRecord(t *testing.T) {
	fx := newFixture()
	record := seedRecord(fx)
	delete(fx.datasets.records, record.DatasetID)
	fx.cache.records[record.DatasetID] = record

	_, err := fx.service.Edit(context.Background(), EditDatasetInput{
		DatasetID: "ds-1",
		Metadata:  DatasetMetadata{Info: map[string]any{}},
		Files: map[string][]workspace.FileEntry{
			model.CategoryRaw: {{Path: "new.csv", Data: []byte("n")}},
		},
	})
	require.NoError(t, err)
	require.Contains(t, fx.datasets.updates, "ds-1")
}

func TestEditDatasetNotFound(t *testing.T) {
	fx := newFixture()

	_, err := fx.service.Edit(context.Background(), EditDatasetInput{
		DatasetID: "ds-missing",
		Metadata:  DatasetMetadata{Info: map[string]any{}},
	})
	require.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestDeleteDataset(t *testing.T) {
	fx := newFixture()
	seedRecord(fx)

	require.NoError(t, fx.service.Delete(context.Background(), "ds-1"))

	require.Empty(t, fx.blobs.Keys("alice/iris/"))
	require.NotContains(t, fx.datasets.records, "ds-1")
	require.Equal(t, []string{"uid-1:ds-1"}, fx.users.removed)

	require.Len(t, fx.publisher.events, 1)
	require.Equal(t, model.EventActionDelete, fx.publisher.events[0].Action)
}

func TestDeleteDatasetNotFound(t *testing.T) {
	fx := newFixture()

	err := fx.service.Delete(context.Background(), "ds-missing")
	require.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "my_cool_dataset", NormalizeName("My Cool Dataset"))
	require.Equal(t, "iris", NormalizeName("  Iris "))
	require.Equal(t, "", NormalizeName(""))
}
