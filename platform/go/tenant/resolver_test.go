package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	entries map[uuid.UUID]DirectoryEntry
	err     error
	calls   int
}

func (d *fakeDirectory) LookupTenant(_ context.Context, tenantID uuid.UUID) (DirectoryEntry, error) {
	d.calls++
	if d.err != nil {
		return DirectoryEntry{}, d.err
	}
	entry, ok := d.entries[tenantID]
	if !ok {
		return DirectoryEntry{}, ErrTenantNotFound
	}
	return entry, nil
}

func TestNewResolverRejectsTemplateWithoutPlaceholder(t *testing.T) {
	_, err := NewResolver(&fakeDirectory{}, "postgres://app@db:5432/fixed_name")
	require.Error(t, err)
}

func TestResolveBuildsConnString(t *testing.T) {
	id := uuid.New()
	dir := &fakeDirectory{entries: map[uuid.UUID]DirectoryEntry{
		id: {TenantID: id, Slug: "acme", DatabaseName: "prod_tenant_acme", IsActive: true},
	}}

	r, err := NewResolver(dir, "postgres://app:secret@db:5432/{DatabaseName}?sslmode=require")
	require.NoError(t, err)

	target, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "prod_tenant_acme", target.DatabaseName)
	require.Equal(t, "postgres://app:secret@db:5432/prod_tenant_acme?sslmode=require", target.ConnString)
	require.Equal(t, id, target.TenantID)
	require.Equal(t, "acme", target.Slug)
}

func TestResolveIsDeterministic(t *testing.T) {
	id := uuid.New()
	dir := &fakeDirectory{entries: map[uuid.UUID]DirectoryEntry{
		id: {TenantID: id, Slug: "acme", DatabaseName: "dev_tenant_acme", IsActive: true},
	}}

	r, err := NewResolver(dir, "postgres://db/{DatabaseName}")
	require.NoError(t, err)

	first, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, first, second)
	// every call reads the directory; no caching between requests
	require.Equal(t, 2, dir.calls)
}

func TestResolveNilTenant(t *testing.T) {
	dir := &fakeDirectory{}
	r, err := NewResolver(dir, "postgres://db/{DatabaseName}")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), uuid.Nil)
	require.ErrorIs(t, err, ErrTenantNotFound)
	require.Zero(t, dir.calls)
}

func TestResolveUnknownTenant(t *testing.T) {
	r, err := NewResolver(&fakeDirectory{}, "postgres://db/{DatabaseName}")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveInactiveTenantLooksMissing(t *testing.T) {
	id := uuid.New()
	dir := &fakeDirectory{entries: map[uuid.UUID]DirectoryEntry{
		id: {TenantID: id, Slug: "dormant", DatabaseName: "dev_tenant_dormant", IsActive: false},
	}}

	r, err := NewResolver(dir, "postgres://db/{DatabaseName}")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), id)
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveUnprovisionedTenant(t *testing.T) {
	id := uuid.New()
	dir := &fakeDirectory{entries: map[uuid.UUID]DirectoryEntry{
		id: {TenantID: id, Slug: "fresh", DatabaseName: "", IsActive: true},
	}}

	r, err := NewResolver(dir, "postgres://db/{DatabaseName}")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), id)
	require.ErrorIs(t, err, ErrTenantMisconfigured)
}
