package persistence

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// Validation failures. Mismatch and hash failures indicate infrastructure
// misconfiguration or tampering, never a client error.
var (
	// ErrTenantMismatch means the identity record disagrees with the resolved
	// tenant: the connection points at another tenant's database.
	ErrTenantMismatch = errors.New("tenant identity mismatch")
	// ErrHashMismatch means the stored validation hash does not match the
	// recomputed digest (tamper or corruption signal).
	ErrHashMismatch = errors.New("tenant identity hash mismatch")
	// ErrIdentityRecord means the identity table did not hold exactly one row.
	ErrIdentityRecord = errors.New("tenant identity record invalid")
)

// IdentityValidator opens a resolved tenant database and proves it belongs to
// the claimed tenant before any query runs against it.
type IdentityValidator struct {
	secret []byte
	dialer Dialer
}

// NewIdentityValidator constructs a validator with the provisioning secret and
// a dialer (normally a *Connector).
func NewIdentityValidator(secret []byte, dialer Dialer) (*IdentityValidator, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity secret is required")
	}
	if dialer == nil {
		return nil, errors.New("dialer is required")
	}
	return &IdentityValidator{secret: secret, dialer: dialer}, nil
}

// Validate dials the target database, checks its identity record against the
// resolved tenant, and returns the still-open validated handle. On any failure
// the connection is closed before returning; the caller never receives a
// handle to an unvalidated database.
func (v *IdentityValidator) Validate(ctx context.Context, tenantID uuid.UUID, target tenant.Target) (*TenantConn, error) {
	session, err := v.dialer.Dial(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := v.check(ctx, session, tenantID, target); err != nil {
		_ = session.Close(ctx)
		return nil, err
	}

	return NewTenantConn(session, target), nil
}

func (v *IdentityValidator) check(ctx context.Context, session Session, tenantID uuid.UUID, target tenant.Target) error {
	records, err := session.Identity(ctx)
	if err != nil {
		return fmt.Errorf("read identity record: %w", err)
	}
	if len(records) != 1 {
		return fmt.Errorf("%w: expected exactly one row, found %d", ErrIdentityRecord, len(records))
	}

	rec := records[0]
	if rec.TenantID != tenantID || rec.TenantID != target.TenantID || rec.DatabaseName != target.DatabaseName {
		return fmt.Errorf("%w: record claims tenant %s database %q, resolved tenant %s database %q",
			ErrTenantMismatch, rec.TenantID, rec.DatabaseName, target.TenantID, target.DatabaseName)
	}

	expected := ComputeValidationHash(v.secret, rec.TenantID, rec.DatabaseName, rec.CreatedAt)
	if !hmac.Equal([]byte(expected), []byte(rec.ValidationHash)) {
		return ErrHashMismatch
	}

	return nil
}
