package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"datasethub/internal/app"
	"datasethub/internal/model"
	"datasethub/internal/transport/http/middleware"
	"datasethub/internal/transport/http/response"
	"datasethub/internal/workspace"
)

type DatasetHandler struct {
	datasetService *app.DatasetService
	maxFileSize    int64
}

func NewDatasetHandler(datasetService *app.DatasetService, maxFileSizeMB int) *DatasetHandler {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 100
	}
	return &DatasetHandler{
		datasetService: datasetService,
		maxFileSize:    int64(maxFileSizeMB) << 20,
	}
}

// datasetInfoPayload mirrors the client's datasetInfo form blob: the
// free-form dataset_info document plus vectorization settings beside it.
type datasetInfoPayload struct {
	DatasetID      string         `json:"datasetId"`
	DatasetInfo    map[string]any `json:"dataset_info"`
	Dimensions     int            `json:"dimensions"`
	VectorDatabase string         `json:"vector_database"`
	ModelName      string         `json:"model_name"`
}

func (p *datasetInfoPayload) metadata() app.DatasetMetadata {
	info := p.DatasetInfo
	if info == nil {
		info = map[string]any{}
	}
	return app.DatasetMetadata{
		Info:           info,
		Dimensions:     p.Dimensions,
		VectorDatabase: p.VectorDatabase,
		ModelName:      p.ModelName,
	}
}

// Upload handles the multipart create-dataset request. File groups arrive as
// raw_files/vectorized_files (type "both") or a single files group; each
// group may carry an aligned *_paths array with explicit per-file relative
// paths for folder uploads.
func (h *DatasetHandler) Upload(c *gin.Context) {
	uid := callerUID(c)
	if uid == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "user id is required")
		return
	}

	uploadType := strings.ToLower(strings.TrimSpace(c.PostForm("type")))
	if uploadType == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "upload type is required")
		return
	}

	payload, err := parseDatasetInfo(c.PostForm("datasetInfo"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid datasetInfo payload")
		return
	}
	if payload.DatasetID != "" {
		payload.DatasetInfo["datasetId"] = payload.DatasetID
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}

	files, err := h.collectGroups(form, uploadType)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	result, err := h.datasetService.Create(c.Request.Context(), app.CreateDatasetInput{
		UID:        uid,
		UploadType: uploadType,
		Metadata:   payload.metadata(),
		IsFolder:   c.PostForm("isFolder") == "true",
		Files:      files,
	})
	if err != nil {
		writeDatasetError(c, err)
		return
	}

	response.OKMessage(c,
		fmt.Sprintf("Successfully uploaded dataset %s", result.Record.DatasetID),
		gin.H{
			"dataset_id": result.Record.DatasetID,
			"files":      result.URLs,
		})
}

// Edit handles the multipart edit request. Each category present replaces
// the dataset's file list for that category.
func (h *DatasetHandler) Edit(c *gin.Context) {
	uploadType := strings.ToLower(strings.TrimSpace(c.PostForm("type")))
	if uploadType == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "upload type is required")
		return
	}

	payload, err := parseDatasetInfo(c.PostForm("datasetInfo"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid datasetInfo payload")
		return
	}
	if payload.DatasetID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "dataset id is required")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}

	files, err := h.collectGroups(form, uploadType)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	result, err := h.datasetService.Edit(c.Request.Context(), app.EditDatasetInput{
		DatasetID: payload.DatasetID,
		Metadata:  payload.metadata(),
		IsFolder:  c.PostForm("isFolder") == "true",
		Files:     files,
	})
	if err != nil {
		writeDatasetError(c, err)
		return
	}

	response.OKMessage(c, "Successfully updated dataset files", gin.H{
		"dataset_id": result.Record.DatasetID,
		"files":      result.URLs,
	})
}

func (h *DatasetHandler) Delete(c *gin.Context) {
	datasetID := strings.TrimSpace(c.Param("id"))
	if datasetID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "dataset id is required")
		return
	}

	if err := h.datasetService.Delete(c.Request.Context(), datasetID); err != nil {
		writeDatasetError(c, err)
		return
	}

	response.OKMessage(c, "Dataset deleted successfully", nil)
}

// collectGroups reads the multipart file groups for the requested type. The
// combined groups (raw_files, vectorized_files) are consulted for "both";
// otherwise the plain files group feeds the single requested category.
func (h *DatasetHandler) collectGroups(form *multipart.Form, uploadType string) (map[string][]workspace.FileEntry, error) {
	files := map[string][]workspace.FileEntry{}

	if uploadType == model.UploadTypeBoth {
		raw, err := h.readGroup(form, "raw_files", "raw_paths")
		if err != nil {
			return nil, err
		}
		vectorized, err := h.readGroup(form, "vectorized_files", "vectorized_paths")
		if err != nil {
			return nil, err
		}
		files[model.CategoryRaw] = raw
		files[model.CategoryVectorized] = vectorized
		return files, nil
	}

	group, err := h.readGroup(form, "files", "paths")
	if err != nil {
		return nil, err
	}
	files[uploadType] = group
	return files, nil
}

func (h *DatasetHandler) readGroup(form *multipart.Form, fileField, pathField string) ([]workspace.FileEntry, error) {
	headers := form.File[fileField]
	paths := form.Value[pathField]

	entries := make([]workspace.FileEntry, 0, len(headers))
	for i, header := range headers {
		if header.Size > h.maxFileSize {
			return nil, fmt.Errorf("file %s exceeds the %d MB limit", header.Filename, h.maxFileSize>>20)
		}

		rel := header.Filename
		if i < len(paths) && strings.TrimSpace(paths[i]) != "" {
			rel = paths[i]
		}

		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open uploaded file %s failed: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read uploaded file %s failed: %w", header.Filename, err)
		}

		entries = append(entries, workspace.FileEntry{Path: rel, Data: data})
	}
	return entries, nil
}

func parseDatasetInfo(raw string) (*datasetInfoPayload, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("datasetInfo is required")
	}
	var payload datasetInfoPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	if payload.DatasetInfo == nil {
		payload.DatasetInfo = map[string]any{}
	}
	return &payload, nil
}

func writeDatasetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
	case errors.Is(err, app.ErrDatasetNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDatasetNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
	}
}

func callerUID(c *gin.Context) string {
	if v, ok := c.Get(middleware.ContextUIDKey); ok {
		if uid, ok := v.(string); ok && uid != "" {
			return uid
		}
	}
	return strings.TrimSpace(c.PostForm("uid"))
}
