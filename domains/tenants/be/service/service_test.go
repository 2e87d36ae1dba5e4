package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/learnstack-io/learnstack/domains/tenants/be/repo"
	"github.com/learnstack-io/learnstack/domains/tenants/be/service"
	"github.com/learnstack-io/learnstack/platform/go/requesttrace"
)

type stubProvisioner struct {
	calls []service.DBProvisionRequest
	err   error
}

func (p *stubProvisioner) Ensure(_ context.Context, req service.DBProvisionRequest) error {
	p.calls = append(p.calls, req)
	return p.err
}

func newService(t *testing.T) (*service.Service, *repo.Memory, *stubProvisioner) {
	t.Helper()
	mem := repo.NewMemory()
	prov := &stubProvisioner{}
	return service.New(mem, "dev", prov), mem, prov
}

func adminCtx() context.Context {
	userID := "admin-1"
	return requesttrace.IntoContext(context.Background(), requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &userID,
	})
}

func TestCreateTenant(t *testing.T) {
	svc, _, _ := newService(t)

	name := "Acme Co"
	created, err := svc.Create(adminCtx(), service.CreateInput{
		Slug:        "acme-co",
		DisplayName: &name,
		Metadata:    map[string]string{"plan": "pro"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.Equal(t, "acme-co", created.Slug)
	require.True(t, created.IsActive)
	require.Empty(t, created.DatabaseName)
	require.NotEmpty(t, created.CreatedBy)
	require.Equal(t, created.CreatedBy, created.UpdatedBy)
}

func TestCreateTenantRejectsBadSlug(t *testing.T) {
	svc, _, _ := newService(t)

	for _, slug := range []string{"", "Acme", "acme_co", "-acme", "acme-", "acme co", "acme--co"} {
		_, err := svc.Create(adminCtx(), service.CreateInput{Slug: slug})
		require.ErrorIs(t, err, service.ErrValidation, "slug %q", slug)
	}
}

func TestCreateTenantMetadataBounds(t *testing.T) {
	svc, _, _ := newService(t)

	tooMany := map[string]string{}
	for i := 0; i < service.MaxMetadataEntries+1; i++ {
		tooMany[strings.Repeat("k", 3)+string(rune('a'+i%26))+strings.Repeat("x", i/26)] = "v"
	}
	_, err := svc.Create(adminCtx(), service.CreateInput{Slug: "acme", Metadata: tooMany})
	require.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.Create(adminCtx(), service.CreateInput{
		Slug:     "acme",
		Metadata: map[string]string{strings.Repeat("k", service.MaxMetadataKeyLength+1): "v"},
	})
	require.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.Create(adminCtx(), service.CreateInput{
		Slug:     "acme",
		Metadata: map[string]string{"k": strings.Repeat("v", service.MaxMetadataValueLength+1)},
	})
	require.ErrorIs(t, err, service.ErrValidation)
}

func TestCreateTenantSlugConflict(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Create(adminCtx(), service.CreateInput{Slug: "acme"})
	require.NoError(t, err)

	_, err = svc.Create(adminCtx(), service.CreateInput{Slug: "acme"})
	require.ErrorIs(t, err, service.ErrConflictSlug)
}

func TestProvisionBindsDerivedDatabaseName(t *testing.T) {
	svc, _, prov := newService(t)

	created, err := svc.Create(adminCtx(), service.CreateInput{Slug: "acme-co"})
	require.NoError(t, err)

	provisioned, err := svc.Provision(adminCtx(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "dev_tenant_acme_co", provisioned.DatabaseName)

	require.Len(t, prov.calls, 1)
	require.Equal(t, created.ID, prov.calls[0].TenantID)
	require.Equal(t, "dev_tenant_acme_co", prov.calls[0].DatabaseName)
}

func TestProvisionIsRefusedOnceBound(t *testing.T) {
	svc, _, prov := newService(t)

	created, err := svc.Create(adminCtx(), service.CreateInput{Slug: "acme"})
	require.NoError(t, err)

	_, err = svc.Provision(adminCtx(), created.ID)
	require.NoError(t, err)

	_, err = svc.Provision(adminCtx(), created.ID)
	require.ErrorIs(t, err, service.ErrAlreadyProvisioned)
	require.Len(t, prov.calls, 1)
}

func TestProvisionDoesNotBindWhenProvisionerFails(t *testing.T) {
	svc, _, prov := newService(t)
	prov.err = errors.New("create database failed")

	created, err := svc.Create(adminCtx(), service.CreateInput{Slug: "acme"})
	require.NoError(t, err)

	_, err = svc.Provision(adminCtx(), created.ID)
	require.Error(t, err)

	// the directory binding must not happen on a failed provision
	current, err := svc.Get(adminCtx(), created.ID)
	require.NoError(t, err)
	require.Empty(t, current.DatabaseName)
}

func TestUpdateTenant(t *testing.T) {
	svc, _, _ := newService(t)

	created, err := svc.Create(adminCtx(), service.CreateInput{Slug: "acme"})
	require.NoError(t, err)

	name := "Acme Holdings"
	inactive := false
	updated, err := svc.Update(adminCtx(), created.ID, service.UpdateInput{
		DisplayName: &name,
		IsActive:    &inactive,
	})
	require.NoError(t, err)
	require.Equal(t, &name, updated.DisplayName)
	require.False(t, updated.IsActive)
}

func TestDeleteTenantHidesIt(t *testing.T) {
	svc, _, _ := newService(t)

	created, err := svc.Create(adminCtx(), service.CreateInput{Slug: "acme"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(adminCtx(), created.ID))

	_, err = svc.Get(adminCtx(), created.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	// the slug stays reserved: soft delete keeps the row
	_, err = svc.Create(adminCtx(), service.CreateInput{Slug: "acme"})
	require.NoError(t, err)
}

func TestListTenantsPagination(t *testing.T) {
	svc, _, _ := newService(t)

	for _, slug := range []string{"t-a", "t-b", "t-c"} {
		_, err := svc.Create(adminCtx(), service.CreateInput{Slug: slug})
		require.NoError(t, err)
	}

	result, err := svc.List(adminCtx(), service.ListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 2)
	require.Equal(t, 3, result.TotalItems)
	require.Equal(t, 2, result.TotalPages)
}
