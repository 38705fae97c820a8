package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"datasethub/internal/archive"
	"datasethub/internal/blobstore"
	"datasethub/internal/model"
	"datasethub/internal/repository"
	"datasethub/internal/workspace"
)

type UserStore interface {
	GetByUID(ctx context.Context, uid string) (*model.UserProfile, error)
	AppendDataset(ctx context.Context, uid, datasetID string) error
	RemoveDataset(ctx context.Context, uid, datasetID string) error
}

type DatasetStore interface {
	Insert(ctx context.Context, record *model.DatasetRecord) error
	GetByDatasetID(ctx context.Context, datasetID string) (*model.DatasetRecord, error)
	Update(ctx context.Context, datasetID string, update repository.DatasetUpdate) error
	Delete(ctx context.Context, datasetID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.DatasetEvent) error
}

type RecordCache interface {
	GetRecord(ctx context.Context, datasetID string) (*model.DatasetRecord, bool, error)
	SetRecord(ctx context.Context, record *model.DatasetRecord) error
	DeleteRecord(ctx context.Context, datasetID string) error
}

// DatasetService drives the upload, edit and deletion workflows. Every
// invocation is an independent unit of work: steps run strictly in sequence,
// the only shared state is in the remote stores, and scratch workspaces are
// cleaned up on every exit path.
type DatasetService struct {
	users     UserStore
	datasets  DatasetStore
	blobs     blobstore.Store
	cache     RecordCache
	publisher EventPublisher
	fs        afero.Fs
	builder   *workspace.Builder
}

func NewDatasetService(
	users UserStore,
	datasets DatasetStore,
	blobs blobstore.Store,
	cache RecordCache,
	publisher EventPublisher,
	scratchFs afero.Fs,
) *DatasetService {
	return &DatasetService{
		users:     users,
		datasets:  datasets,
		blobs:     blobs,
		cache:     cache,
		publisher: publisher,
		fs:        scratchFs,
		builder:   workspace.NewBuilder(scratchFs),
	}
}

// DatasetMetadata carries the caller-supplied metadata blob. Info is the
// free-form dataset_info document; the vectorization settings live beside it
// in the original payload and are folded into Info on create.
type DatasetMetadata struct {
	Info           map[string]any
	Dimensions     int
	VectorDatabase string
	ModelName      string
}

type CreateDatasetInput struct {
	UID        string
	UploadType string
	Metadata   DatasetMetadata
	IsFolder   bool
	Files      map[string][]workspace.FileEntry
}

type CreateDatasetResult struct {
	Record *model.DatasetRecord
	URLs   []string
}

// Create runs the upload workflow: resolve the owner, validate metadata
// before any I/O, then per non-empty category materialize, archive and
// upload, and finally persist the record plus the owner's index entry. A
// failure after the first upload triggers best-effort deletion of the whole
// dataset prefix before the error surfaces.
func (s *DatasetService) Create(ctx context.Context, input CreateDatasetInput) (*CreateDatasetResult, error) {
	if strings.TrimSpace(input.UID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}

	profile, err := s.users.GetByUID(ctx, input.UID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if profile == nil {
		return nil, ErrUserNotFound
	}
	if profile.Username == "" {
		return nil, fmt.Errorf("%w: user profile has no username", ErrInvalidRequest)
	}

	uploadType := strings.ToLower(input.UploadType)
	if err := validateMetadata(uploadType, input.Metadata); err != nil {
		return nil, err
	}

	info := buildDatasetInfo(profile.Username, uploadType, input.Metadata)
	datasetID := callerDatasetID(info)
	if datasetID == "" {
		datasetID = uuid.NewString()
	}
	displayName, _ := input.Metadata.Info["name"].(string)
	datasetName := NormalizeName(displayName)

	manifest := model.FileManifest{}.Normalized()
	var uploaded []string
	for _, category := range model.Categories() {
		entries := input.Files[category]
		if len(entries) == 0 {
			continue
		}
		url, err := s.uploadCategory(ctx, profile.Username, datasetName, category, entries, input.IsFolder)
		if err != nil {
			s.compensate(ctx, profile.Username, datasetName)
			return nil, err
		}
		manifest[category] = []string{url}
		uploaded = append(uploaded, category)
	}

	record := &model.DatasetRecord{
		DatasetID:   datasetID,
		DatasetInfo: info,
		UploadType:  manifest.UploadType(uploadType),
		Files:       manifest,
		Timestamp:   time.Now().UTC(),
		UID:         input.UID,
		IsFolder:    input.IsFolder,
	}

	// Record insert and index append are one logical unit: if either fails
	// the uploaded blobs are compensated away so no record can reference an
	// unreachable URL.
	if err := s.datasets.Insert(ctx, record); err != nil {
		s.compensate(ctx, profile.Username, datasetName)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if err := s.users.AppendDataset(ctx, input.UID, datasetID); err != nil {
		if delErr := s.datasets.Delete(ctx, datasetID); delErr != nil {
			log.Printf("rollback of dataset record %s failed: %v", datasetID, delErr)
		}
		s.compensate(ctx, profile.Username, datasetName)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	if err := s.cache.SetRecord(ctx, record); err != nil {
		log.Printf("cache dataset record %s failed: %v", datasetID, err)
	}
	s.publishEvent(ctx, model.EventActionCreate, record, uploaded)

	return &CreateDatasetResult{Record: record, URLs: manifestURLs(manifest, model.Categories())}, nil
}

type EditDatasetInput struct {
	DatasetID string
	Metadata  DatasetMetadata
	IsFolder  bool
	Files     map[string][]workspace.FileEntry
}

type EditDatasetResult struct {
	Record *model.DatasetRecord
	URLs   []string
}

// Edit replaces the file list of each category present in the request and
// recomputes upload_type from the resulting manifest. Compensation on a
// failed upload wipes the dataset's whole prefix, matching the create
// policy.
func (s *DatasetService) Edit(ctx context.Context, input EditDatasetInput) (*EditDatasetResult, error) {
	if strings.TrimSpace(input.DatasetID) == "" {
		return nil, fmt.Errorf("%w: dataset id is required", ErrInvalidRequest)
	}

	record, err := s.loadRecord(ctx, input.DatasetID)
	if err != nil {
		return nil, err
	}

	username := record.Username()
	datasetName := NormalizeName(record.Name())
	if username == "" || datasetName == "" {
		return nil, fmt.Errorf("%w: record is missing username or dataset name", ErrInvalidRequest)
	}

	manifest := record.Files.Normalized()
	var edited []string
	for _, category := range model.Categories() {
		entries := input.Files[category]
		if len(entries) == 0 {
			continue
		}
		url, err := s.uploadCategory(ctx, username, datasetName, category, entries, input.IsFolder)
		if err != nil {
			s.compensate(ctx, username, datasetName)
			s.invalidate(ctx, input.DatasetID)
			return nil, err
		}
		manifest[category] = []string{url}
		edited = append(edited, category)
	}

	update := repository.DatasetUpdate{
		Files:      manifest,
		UploadType: manifest.UploadType(record.UploadType),
		Timestamp:  time.Now().UTC(),
		Info:       infoPatch(input.Metadata),
	}
	if err := s.datasets.Update(ctx, input.DatasetID, update); err != nil {
		s.compensate(ctx, username, datasetName)
		s.invalidate(ctx, input.DatasetID)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	updated := *record
	updated.Files = manifest
	updated.UploadType = update.UploadType
	updated.Timestamp = update.Timestamp
	for key, value := range update.Info {
		updated.DatasetInfo[key] = value
	}

	s.invalidate(ctx, input.DatasetID)
	s.publishEvent(ctx, model.EventActionEdit, &updated, edited)

	return &EditDatasetResult{Record: &updated, URLs: manifestURLs(manifest, edited)}, nil
}

// Delete removes every blob under the dataset's prefix, then the record.
// Blobs go first so a crash can never leave a record pointing at live blobs;
// the reverse window (blobs gone, record left) is logged.
func (s *DatasetService) Delete(ctx context.Context, datasetID string) error {
	if strings.TrimSpace(datasetID) == "" {
		return fmt.Errorf("%w: dataset id is required", ErrInvalidRequest)
	}

	record, err := s.loadRecord(ctx, datasetID)
	if err != nil {
		return err
	}

	username := record.Username()
	datasetName := NormalizeName(record.Name())
	if username == "" || datasetName == "" {
		return fmt.Errorf("%w: record is missing username or dataset name", ErrInvalidRequest)
	}

	prefix := blobstore.DatasetPrefix(username, datasetName)
	if err := s.blobs.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	if err := s.datasets.Delete(ctx, datasetID); err != nil {
		log.Printf("dataset %s: blobs under %s removed but record deletion failed: %v", datasetID, prefix, err)
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if err := s.users.RemoveDataset(ctx, record.UID, datasetID); err != nil {
		log.Printf("remove dataset %s from user index failed: %v", datasetID, err)
	}

	s.invalidate(ctx, datasetID)
	s.publishEvent(ctx, model.EventActionDelete, record, nil)
	return nil
}

// uploadCategory materializes one category's entries, archives them and
// uploads the archive at its deterministic key. The scratch workspace is
// removed on every path out.
func (s *DatasetService) uploadCategory(ctx context.Context, username, datasetName, category string, entries []workspace.FileEntry, isFolder bool) (string, error) {
	ws, err := s.builder.Materialize(category, entries, isFolder)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer ws.Cleanup()

	zipPath := ws.Dir() + ".zip"
	if err := archive.Zip(s.fs, ws.Dir(), category, zipPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	f, err := s.fs.Open(zipPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer f.Close()

	key := blobstore.ArchiveKey(username, datasetName, category)
	url, err := s.blobs.Put(ctx, key, f, true)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return url, nil
}

func (s *DatasetService) loadRecord(ctx context.Context, datasetID string) (*model.DatasetRecord, error) {
	cached, ok, err := s.cache.GetRecord(ctx, datasetID)
	if err != nil {
		log.Printf("read dataset %s from cache failed: %v", datasetID, err)
	} else if ok {
		return cached, nil
	}

	record, err := s.datasets.GetByDatasetID(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if record == nil {
		return nil, ErrDatasetNotFound
	}
	return record, nil
}

// compensate deletes everything under the dataset's prefix. Best effort: the
// primary failure already determines the outcome, so a failed compensation is
// only logged.
func (s *DatasetService) compensate(ctx context.Context, username, datasetName string) {
	prefix := blobstore.DatasetPrefix(username, datasetName)
	if err := s.blobs.DeletePrefix(ctx, prefix); err != nil {
		log.Printf("compensating blob deletion under %s failed: %v", prefix, err)
	}
}

func (s *DatasetService) invalidate(ctx context.Context, datasetID string) {
	if err := s.cache.DeleteRecord(ctx, datasetID); err != nil {
		log.Printf("invalidate cached record %s failed: %v", datasetID, err)
	}
}

func (s *DatasetService) publishEvent(ctx context.Context, action string, record *model.DatasetRecord, categories []string) {
	event := model.DatasetEvent{
		DatasetID:  record.DatasetID,
		UID:        record.UID,
		Username:   record.Username(),
		Action:     action,
		UploadType: record.UploadType,
		Categories: strings.Join(categories, ","),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("publish dataset %s event failed: %v", action, err)
	}
}

// NormalizeName maps a display name onto the storage-safe form used in every
// blob key: lowercase, spaces replaced with underscores. Distinct display
// names may collide onto the same normalized name; the deterministic key
// scheme makes the collision an overwrite rather than corruption.
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

func validateMetadata(uploadType string, md DatasetMetadata) error {
	switch uploadType {
	case model.UploadTypeRaw, model.UploadTypeVectorized, model.UploadTypeBoth:
	default:
		return fmt.Errorf("%w: unknown upload type %q", ErrInvalidRequest, uploadType)
	}

	if name, _ := md.Info["name"].(string); strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: dataset name is required", ErrInvalidRequest)
	}
	if license, _ := md.Info["license"].(string); strings.TrimSpace(license) == "" {
		return fmt.Errorf("%w: license is required", ErrInvalidRequest)
	}

	if uploadType == model.UploadTypeVectorized || uploadType == model.UploadTypeBoth {
		if md.Dimensions <= 0 {
			return fmt.Errorf("%w: dimensions are required for vectorized uploads", ErrInvalidRequest)
		}
		if strings.TrimSpace(md.VectorDatabase) == "" {
			return fmt.Errorf("%w: vector database is required for vectorized uploads", ErrInvalidRequest)
		}
		if strings.TrimSpace(md.ModelName) == "" {
			return fmt.Errorf("%w: model name is required for vectorized uploads", ErrInvalidRequest)
		}
	}
	return nil
}

func buildDatasetInfo(username, uploadType string, md DatasetMetadata) map[string]any {
	info := map[string]any{}
	for key, value := range md.Info {
		info[key] = value
	}
	info["username"] = username
	if uploadType == model.UploadTypeVectorized || uploadType == model.UploadTypeBoth {
		info["dimensions"] = md.Dimensions
		info["vector_database"] = md.VectorDatabase
		info["model_name"] = md.ModelName
	}
	return info
}

func callerDatasetID(info map[string]any) string {
	id, _ := info["datasetId"].(string)
	return strings.TrimSpace(id)
}

// infoPatch extracts the dataset_info fields an edit may rewrite. The name
// and username keys are dropped: the storage prefix is derived from them and
// must not drift away from the blobs already uploaded under it.
func infoPatch(md DatasetMetadata) map[string]any {
	patch := map[string]any{}
	for key, value := range md.Info {
		if key == "name" || key == "username" || key == "datasetId" {
			continue
		}
		patch[key] = value
	}
	if md.Dimensions > 0 {
		patch["dimensions"] = md.Dimensions
	}
	if md.VectorDatabase != "" {
		patch["vector_database"] = md.VectorDatabase
	}
	if md.ModelName != "" {
		patch["model_name"] = md.ModelName
	}
	return patch
}

func manifestURLs(manifest model.FileManifest, categories []string) []string {
	var urls []string
	for _, category := range categories {
		urls = append(urls, manifest[category]...)
	}
	return urls
}
