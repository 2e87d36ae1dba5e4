package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestComputeValidationHashRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	id := uuid.New()
	created := time.Now()

	rec := NewIdentityRecord(secret, id, "dev_tenant_acme", created, `{"slug":"acme"}`)
	require.Equal(t, id, rec.TenantID)
	require.Equal(t, "dev_tenant_acme", rec.DatabaseName)

	// recomputing over the stored fields must reproduce the stored hash
	recomputed := ComputeValidationHash(secret, rec.TenantID, rec.DatabaseName, rec.CreatedAt)
	require.Equal(t, rec.ValidationHash, recomputed)
}

func TestComputeValidationHashSurvivesMicrosecondTruncation(t *testing.T) {
	secret := []byte("test-secret")
	id := uuid.New()

	// timestamptz keeps microseconds; nanosecond precision must not matter
	precise := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	stored := precise.Truncate(time.Microsecond)

	require.Equal(t,
		ComputeValidationHash(secret, id, "db", precise),
		ComputeValidationHash(secret, id, "db", stored),
	)
}

func TestComputeValidationHashDetectsMutation(t *testing.T) {
	secret := []byte("test-secret")
	id := uuid.New()
	created := time.Now()

	base := ComputeValidationHash(secret, id, "dev_tenant_acme", created)

	require.NotEqual(t, base, ComputeValidationHash(secret, uuid.New(), "dev_tenant_acme", created))
	require.NotEqual(t, base, ComputeValidationHash(secret, id, "dev_tenant_other", created))
	require.NotEqual(t, base, ComputeValidationHash(secret, id, "dev_tenant_acme", created.Add(time.Millisecond)))
	require.NotEqual(t, base, ComputeValidationHash([]byte("other-secret"), id, "dev_tenant_acme", created))
}
