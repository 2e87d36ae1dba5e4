package apierror

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Category labels the failure class so clients can branch without parsing
// free-text messages.
type Category string

const (
	CategoryUnauthorized         Category = "Unauthorized"
	CategoryTenantRequired       Category = "TenantRequired"
	CategoryTenantNotFound       Category = "TenantNotFound"
	CategoryTenantIntegrityError Category = "TenantIntegrityError"
	CategoryServiceUnavailable   Category = "ServiceUnavailable"
	CategoryValidation           Category = "ValidationError"
	CategoryNotFound             Category = "NotFound"
	CategoryConflict             Category = "Conflict"
	CategoryInternal             Category = "InternalError"
)

// Envelope is the uniform error body for every failure response.
// CorrelationID is supplied by the upstream request-id middleware and passed
// through unchanged.
type Envelope struct {
	Category      Category `json:"category"`
	Title         string   `json:"title"`
	Status        int      `json:"status"`
	Errors        []string `json:"errors"`
	CorrelationID string   `json:"correlationId"`
}

// New builds an Envelope with the correlation id taken from the request context.
func New(r *http.Request, category Category, status int, title string, errs ...string) Envelope {
	if len(errs) == 0 {
		errs = []string{title}
	}
	return Envelope{
		Category:      category,
		Title:         title,
		Status:        status,
		Errors:        errs,
		CorrelationID: middleware.GetReqID(r.Context()),
	}
}

// Write serializes the envelope as the response body with its status code.
func Write(w http.ResponseWriter, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(envelope.Status)
	_ = json.NewEncoder(w).Encode(envelope)
}

// WriteNew is the common one-call path for handlers and middleware.
func WriteNew(w http.ResponseWriter, r *http.Request, category Category, status int, title string, errs ...string) {
	Write(w, New(r, category, status, title, errs...))
}
