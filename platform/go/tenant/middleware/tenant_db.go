package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnstack-io/learnstack/platform/go/apierror"
	platformauth "github.com/learnstack-io/learnstack/platform/go/auth"
	platformlogging "github.com/learnstack-io/learnstack/platform/go/logging"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// Resolver maps a tenant id to its connection target. Implemented by
// *tenant.Resolver; kept as an interface for tests.
type Resolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) (tenant.Target, error)
}

// Validator proves a resolved database belongs to the claimed tenant and
// returns the validated handle. Implemented by *persistence.IdentityValidator.
type Validator interface {
	Validate(ctx context.Context, tenantID uuid.UUID, target tenant.Target) (*persistence.TenantConn, error)
}

// Config controls middleware behavior.
type Config struct {
	// ExemptPrefixes lists route prefixes (administrative/cross-tenant) that
	// pass through without tenant context.
	ExemptPrefixes []string
}

// WithTenantDB resolves the tenant from the authenticated principal's claims,
// validates the tenant database's identity record, and attaches the validated
// connection to the request context. Every step runs in order
// Extract -> Resolve -> Validate -> Pass; any failure short-circuits the
// request with a structured error envelope, so no handler ever runs without a
// validated tenant context on a non-exempt route.
func WithTenantDB(resolver Resolver, validator Validator, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if validator == nil {
		panic("tenant middleware: validator is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(routePath(r), cfg.ExemptPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			logger := platformlogging.FromRequest(r, zap.NewNop())

			// Extract.
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil {
				apierror.WriteNew(w, r, apierror.CategoryUnauthorized, http.StatusUnauthorized, "authentication required")
				return
			}
			if creds.TenantID == nil || *creds.TenantID == "" {
				apierror.WriteNew(w, r, apierror.CategoryTenantRequired, http.StatusUnauthorized, "tenant claim required")
				return
			}
			tenantID, err := uuid.Parse(*creds.TenantID)
			if err != nil || tenantID == uuid.Nil {
				apierror.WriteNew(w, r, apierror.CategoryTenantRequired, http.StatusUnauthorized, "tenant claim required")
				return
			}

			// Resolve.
			target, err := resolver.Resolve(r.Context(), tenantID)
			if err != nil {
				switch {
				case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, tenant.ErrTenantMisconfigured):
					// One response for unknown, deactivated and unprovisioned
					// tenants; the distinction must not be enumerable.
					logger.Info("tenant resolution failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
					apierror.WriteNew(w, r, apierror.CategoryTenantNotFound, http.StatusNotFound, "tenant not found")
				default:
					logger.Error("tenant directory lookup failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
					apierror.WriteNew(w, r, apierror.CategoryServiceUnavailable, http.StatusServiceUnavailable, "service unavailable")
				}
				return
			}

			// Validate.
			conn, err := validator.Validate(r.Context(), tenantID, target)
			if err != nil {
				switch {
				case errors.Is(err, persistence.ErrTenantUnreachable):
					logger.Error("tenant database unreachable",
						zap.String("tenant_id", tenantID.String()),
						zap.String("database_name", target.DatabaseName),
						zap.Error(err))
					apierror.WriteNew(w, r, apierror.CategoryServiceUnavailable, http.StatusServiceUnavailable, "service unavailable")
				case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					apierror.WriteNew(w, r, apierror.CategoryServiceUnavailable, http.StatusServiceUnavailable, "service unavailable")
				default:
					// Mismatch, hash failure or a malformed identity record.
					// Full detail stays server-side; the client sees a generic
					// internal error.
					logger.Error("tenant identity validation failed",
						zap.String("tenant_id", tenantID.String()),
						zap.String("database_name", target.DatabaseName),
						zap.Error(err))
					apierror.WriteNew(w, r, apierror.CategoryTenantIntegrityError, http.StatusInternalServerError, "internal error")
				}
				return
			}

			// Pass.
			defer func() {
				_ = conn.Close(context.WithoutCancel(r.Context()))
			}()

			ctx := tenant.WithSpace(r.Context(), tenant.Space{
				TenantID:     target.TenantID,
				Slug:         target.Slug,
				DatabaseName: target.DatabaseName,
			})
			ctx = persistence.WithTenantConn(ctx, conn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// routePath returns the path as the enclosing router routed it. Inside a
// mounted subrouter chi strips the mount prefix into RoutePath while
// r.URL.Path keeps the full request path, so exemption prefixes stay relative
// to the router the middleware is installed on.
func routePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
		return rctx.RoutePath
	}
	return r.URL.Path
}

func isExempt(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
