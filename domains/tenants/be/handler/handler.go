package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnstack-io/learnstack/domains/tenants/be/service"
	"github.com/learnstack-io/learnstack/platform/go/apierror"
	"github.com/learnstack-io/learnstack/platform/go/logging"
)

// Handler exposes tenant directory administration over HTTP. Every route here
// is admin-only and exempt from tenant database resolution.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant admin endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{tenantID}", h.Get)
	r.Patch("/{tenantID}", h.Update)
	r.Delete("/{tenantID}", h.Delete)
	r.Post("/{tenantID}/provision", h.Provision)
	return r
}

type tenantResponse struct {
	TenantID     string            `json:"tenantId"`
	Slug         string            `json:"slug"`
	DisplayName  *string           `json:"displayName,omitempty"`
	DatabaseName string            `json:"databaseName,omitempty"`
	IsActive     bool              `json:"isActive"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	CreatedBy    string            `json:"createdBy"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	UpdatedBy    string            `json:"updatedBy"`
}

type createTenantRequest struct {
	Slug        string            `json:"slug"`
	DisplayName *string           `json:"displayName"`
	Metadata    map[string]string `json:"metadata"`
}

type updateTenantRequest struct {
	DisplayName *string           `json:"displayName"`
	IsActive    *bool             `json:"isActive"`
	Metadata    map[string]string `json:"metadata"`
}

type listTenantsResponse struct {
	Items      []tenantResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Slug:        req.Slug,
		DisplayName: req.DisplayName,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/admin/tenants/%s", created.ID))
	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "pageSize", 20),
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toResponse(t))
	}

	writeJSON(w, http.StatusOK, listTenantsResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req updateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.svc.Update(r.Context(), id, service.UpdateInput{
		DisplayName: req.DisplayName,
		IsActive:    req.IsActive,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	provisioned, err := h.svc.Provision(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(provisioned))
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "tenant id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierror.WriteNew(w, r, apierror.CategoryValidation, http.StatusBadRequest, "tenant validation failed", err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierror.WriteNew(w, r, apierror.CategoryNotFound, http.StatusNotFound, "tenant not found")
	case errors.Is(err, service.ErrConflictSlug), errors.Is(err, service.ErrConflictDatabase), errors.Is(err, service.ErrAlreadyProvisioned):
		apierror.WriteNew(w, r, apierror.CategoryConflict, http.StatusConflict, "tenant conflict", err.Error())
	default:
		logging.FromRequest(r, h.logger).Error("tenant operation failed", zap.Error(err))
		apierror.WriteNew(w, r, apierror.CategoryInternal, http.StatusInternalServerError, "internal error")
	}
}

func toResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		TenantID:     t.ID.String(),
		Slug:         t.Slug,
		DisplayName:  t.DisplayName,
		DatabaseName: t.DatabaseName,
		IsActive:     t.IsActive,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt,
		CreatedBy:    t.CreatedBy,
		UpdatedAt:    t.UpdatedAt,
		UpdatedBy:    t.UpdatedBy,
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
