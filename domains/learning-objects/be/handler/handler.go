package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnstack-io/learnstack/domains/learning-objects/be/service"
	"github.com/learnstack-io/learnstack/platform/go/apierror"
	"github.com/learnstack-io/learnstack/platform/go/logging"
	"github.com/learnstack-io/learnstack/platform/go/storage"
)

// Asset uploads are streamed; this caps the request body.
const maxAssetSize = 32 << 20

// Handler exposes tenant-scoped learning-object management.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("learning-objects service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the learning-object endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{objectID}", h.Get)
	r.Patch("/{objectID}", h.Update)
	r.Delete("/{objectID}", h.Delete)
	r.Put("/{objectID}/assets/{filename}", h.UploadAsset)
	r.Get("/{objectID}/assets/{filename}", h.DownloadAsset)
	return r
}

type objectResponse struct {
	ObjectID    string          `json:"objectId"`
	ObjectType  string          `json:"objectType"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Content     json.RawMessage `json:"content"`
	IsPublished bool            `json:"isPublished"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type createObjectRequest struct {
	ObjectType  string          `json:"objectType"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Content     json.RawMessage `json:"content"`
}

type updateObjectRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Content     json.RawMessage `json:"content"`
	IsPublished *bool           `json:"isPublished"`
}

type listObjectsResponse struct {
	Items      []objectResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		ObjectType:  req.ObjectType,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/learning-objects/%s", created.ID))
	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}

	obj, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(obj))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.List(r.Context(), service.ListOptions{
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "pageSize", 20),
		ObjectType: r.URL.Query().Get("type"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]objectResponse, 0, len(result.Objects))
	for _, obj := range result.Objects {
		items = append(items, toResponse(obj))
	}

	writeJSON(w, http.StatusOK, listObjectsResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}

	var req updateObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.svc.Update(r.Context(), id, service.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	filename := chi.URLParam(r, "filename")

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := http.MaxBytesReader(w, r.Body, maxAssetSize)
	key, err := h.svc.UploadAsset(r.Context(), id, filename, contentType, body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusRequestEntityTooLarge, "asset exceeds size limit")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (h *Handler) DownloadAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.objectID(w, r)
	if !ok {
		return
	}
	filename := chi.URLParam(r, "filename")

	stream, err := h.svc.DownloadAsset(r.Context(), id, filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			apierror.WriteNew(w, r, apierror.CategoryNotFound, http.StatusNotFound, "asset not found")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, stream); err != nil {
		logging.FromRequest(r, h.logger).Warn("asset stream interrupted", zap.Error(err))
	}
}

func (h *Handler) objectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "objectID"))
	if err != nil {
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "object id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "learning object validation failed", err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierror.WriteNew(w, r, apierror.CategoryNotFound, http.StatusNotFound, "learning object not found")
	default:
		logging.FromRequest(r, h.logger).Error("learning object operation failed", zap.Error(err))
		apierror.WriteNew(w, r, apierror.CategoryInternal, http.StatusInternalServerError, "internal error")
	}
}

func toResponse(obj service.LearningObject) objectResponse {
	content := obj.Content
	if len(content) == 0 {
		content = json.RawMessage("{}")
	}
	return objectResponse{
		ObjectID:    obj.ID.String(),
		ObjectType:  obj.ObjectType,
		Title:       obj.Title,
		Description: obj.Description,
		Content:     content,
		IsPublished: obj.IsPublished,
		CreatedAt:   obj.CreatedAt,
		UpdatedAt:   obj.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
