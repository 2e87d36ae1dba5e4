package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/learnstack-io/learnstack/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "LEARNSTACK_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for traceability and audit
// stamping. CorrelationID is minted upstream and never altered here.
type AuditInfo struct {
	ActorKind     ActorKind
	UserID        *string
	TenantID      *string
	CorrelationID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an
// anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// Actor returns the identifier used for audit columns: the user id when the
// actor is a user, otherwise the actor kind itself.
func (a AuditInfo) Actor() string {
	if a.ActorKind == ActorKindUser && a.UserID != nil && *a.UserID != "" {
		return *a.UserID
	}
	return string(a.ActorKind)
}

// FromCredentials builds an AuditInfo from authenticated user credentials and a
// correlation id. Returns an error when creds are nil or missing a user id.
func FromCredentials(creds *platformauth.UserCredentials, correlationID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.ID == "" {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	return AuditInfo{
		ActorKind:     ActorKindUser,
		UserID:        &creds.ID,
		TenantID:      creds.TenantID,
		CorrelationID: correlationID,
	}, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests.
func Anonymous(correlationID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, CorrelationID: correlationID}
}

// System builds an AuditInfo for background/system operations (CLI, provisioning).
func System(correlationID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, CorrelationID: correlationID}
}
