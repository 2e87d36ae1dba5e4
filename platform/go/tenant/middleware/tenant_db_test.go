package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	platformauth "github.com/learnstack-io/learnstack/platform/go/auth"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

type stubResolver struct {
	target tenant.Target
	err    error
	calls  int
}

func (s *stubResolver) Resolve(_ context.Context, _ uuid.UUID) (tenant.Target, error) {
	s.calls++
	if s.err != nil {
		return tenant.Target{}, s.err
	}
	return s.target, nil
}

type stubValidator struct {
	conn  *persistence.TenantConn
	err   error
	calls int
}

func (s *stubValidator) Validate(_ context.Context, _ uuid.UUID, _ tenant.Target) (*persistence.TenantConn, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.conn, nil
}

type noopSession struct {
	closed bool
}

func (s *noopSession) Identity(_ context.Context) ([]persistence.IdentityRecord, error) {
	return nil, nil
}
func (s *noopSession) Conn() *pgx.Conn { return nil }
func (s *noopSession) Close(_ context.Context) error {
	s.closed = true
	return nil
}

type envelope struct {
	Category      string   `json:"category"`
	Title         string   `json:"title"`
	Status        int      `json:"status"`
	Errors        []string `json:"errors"`
	CorrelationID string   `json:"correlationId"`
}

func newRequest(t *testing.T, tenantID *string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/courses", nil)
	if tenantID != nil {
		creds := &platformauth.UserCredentials{ID: "user-1", Email: "u@example.com", TenantID: tenantID}
		r = r.WithContext(platformauth.WithUser(r.Context(), creds))
	}
	return r
}

func authedRequest(t *testing.T, tenantID string) *http.Request {
	t.Helper()
	return newRequest(t, &tenantID)
}

// serve runs the middleware chain with chi's RequestID in front, mirroring the
// server wiring, and returns the recorded response.
func serve(t *testing.T, mw func(http.Handler) http.Handler, r *http.Request, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	if next == nil {
		next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(mw)
	router.Handle("/*", next)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestTenantDBRejectsUnauthenticated(t *testing.T) {
	resolver := &stubResolver{}
	validator := &stubValidator{}
	mw := WithTenantDB(resolver, validator, Config{})

	rec := serve(t, mw, newRequest(t, nil), nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "Unauthorized", env.Category)
	require.NotEmpty(t, env.CorrelationID)
	require.Zero(t, resolver.calls)
	require.Zero(t, validator.calls)
}

func TestTenantDBRejectsMissingTenantClaim(t *testing.T) {
	tests := []struct {
		name  string
		claim string
	}{
		{"empty claim", ""},
		{"unparseable claim", "not-a-uuid"},
		{"nil uuid", uuid.Nil.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{}
			mw := WithTenantDB(resolver, &stubValidator{}, Config{})

			rec := serve(t, mw, authedRequest(t, tt.claim), nil)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			env := decodeEnvelope(t, rec)
			require.Equal(t, "TenantRequired", env.Category)
			require.Zero(t, resolver.calls)
		})
	}
}

func TestTenantDBUnknownTenant(t *testing.T) {
	resolver := &stubResolver{err: tenant.ErrTenantNotFound}
	validator := &stubValidator{}
	mw := WithTenantDB(resolver, validator, Config{})

	rec := serve(t, mw, authedRequest(t, uuid.New().String()), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "TenantNotFound", env.Category)
	// soft-deleted and unknown tenants fail before any database is touched
	require.Zero(t, validator.calls)
}

func TestTenantDBUnprovisionedTenantLooksMissing(t *testing.T) {
	resolver := &stubResolver{err: tenant.ErrTenantMisconfigured}
	mw := WithTenantDB(resolver, &stubValidator{}, Config{})

	rec := serve(t, mw, authedRequest(t, uuid.New().String()), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "TenantNotFound", decodeEnvelope(t, rec).Category)
}

func TestTenantDBDirectoryOutage(t *testing.T) {
	resolver := &stubResolver{err: context.DeadlineExceeded}
	mw := WithTenantDB(resolver, &stubValidator{}, Config{})

	rec := serve(t, mw, authedRequest(t, uuid.New().String()), nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "ServiceUnavailable", decodeEnvelope(t, rec).Category)
}

func TestTenantDBUnreachableDatabase(t *testing.T) {
	id := uuid.New()
	resolver := &stubResolver{target: tenant.Target{TenantID: id, DatabaseName: "dev_tenant_acme"}}
	validator := &stubValidator{err: persistence.ErrTenantUnreachable}
	mw := WithTenantDB(resolver, validator, Config{})

	rec := serve(t, mw, authedRequest(t, id.String()), nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "ServiceUnavailable", decodeEnvelope(t, rec).Category)
}

func TestTenantDBIntegrityFailureIsOpaque(t *testing.T) {
	id := uuid.New()
	resolver := &stubResolver{target: tenant.Target{TenantID: id, DatabaseName: "dev_tenant_acme"}}

	for _, failure := range []error{
		persistence.ErrTenantMismatch,
		persistence.ErrHashMismatch,
		persistence.ErrIdentityRecord,
	} {
		validator := &stubValidator{err: failure}
		mw := WithTenantDB(resolver, validator, Config{})

		rec := serve(t, mw, authedRequest(t, id.String()), nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decodeEnvelope(t, rec)
		require.Equal(t, "TenantIntegrityError", env.Category)
		// the body must not leak which integrity check failed
		require.Equal(t, []string{"internal error"}, env.Errors)
	}
}

func TestTenantDBPassAttachesContextAndClosesConn(t *testing.T) {
	id := uuid.New()
	target := tenant.Target{TenantID: id, Slug: "acme", DatabaseName: "dev_tenant_acme"}
	session := &noopSession{}
	conn := persistence.NewTenantConn(session, target)

	resolver := &stubResolver{target: target}
	validator := &stubValidator{conn: conn}
	mw := WithTenantDB(resolver, validator, Config{})

	var sawSpace tenant.Space
	var sawConn *persistence.TenantConn
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		space, ok := tenant.FromContext(r.Context())
		require.True(t, ok)
		sawSpace = space

		c, ok := persistence.TenantConnFromContext(r.Context())
		require.True(t, ok)
		sawConn = c
		require.False(t, session.closed)
		w.WriteHeader(http.StatusOK)
	})

	rec := serve(t, mw, authedRequest(t, id.String()), next)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, id, sawSpace.TenantID)
	require.Equal(t, "acme", sawSpace.Slug)
	require.Equal(t, "dev_tenant_acme", sawSpace.DatabaseName)
	require.Same(t, conn, sawConn)
	// the handle is released once the handler returns
	require.True(t, session.closed)
}

func TestTenantDBExemptRoutesSkipResolution(t *testing.T) {
	resolver := &stubResolver{}
	validator := &stubValidator{}
	mw := WithTenantDB(resolver, validator, Config{ExemptPrefixes: []string{"/admin/tenants"}})

	r := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	rec := serve(t, mw, r, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, resolver.calls)
	require.Zero(t, validator.calls)
}

func TestTenantDBExemptRoutesSkipResolutionUnderMount(t *testing.T) {
	resolver := &stubResolver{}
	validator := &stubValidator{}
	mw := WithTenantDB(resolver, validator, Config{ExemptPrefixes: []string{"/admin/tenants"}})

	// Mirror the server wiring: exemption prefixes are relative to the
	// mounted router, not to the full request path.
	apiRouter := chi.NewRouter()
	apiRouter.Use(mw)
	apiRouter.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rootRouter := chi.NewRouter()
	rootRouter.Use(chimw.RequestID)
	rootRouter.Mount("/api/v1", apiRouter)

	rec := httptest.NewRecorder()
	rootRouter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/tenants", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, resolver.calls)
	require.Zero(t, validator.calls)

	// Non-exempt routes under the same mount still require a principal.
	rec = httptest.NewRecorder()
	rootRouter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Unauthorized", decodeEnvelope(t, rec).Category)
	require.Zero(t, resolver.calls)
}

func TestTenantDBValidateCancellation(t *testing.T) {
	id := uuid.New()
	resolver := &stubResolver{target: tenant.Target{TenantID: id, DatabaseName: "dev_tenant_acme"}}
	validator := &stubValidator{err: context.Canceled}
	mw := WithTenantDB(resolver, validator, Config{})

	r := authedRequest(t, id.String())
	ctx, cancel := context.WithTimeout(r.Context(), time.Hour)
	defer cancel()
	rec := serve(t, mw, r.WithContext(ctx), nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "ServiceUnavailable", decodeEnvelope(t, rec).Category)
}
