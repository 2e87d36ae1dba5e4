package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/learnstack-io/learnstack/platform/go/requesttrace"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound           = errors.New("tenant not found")
	ErrConflictSlug       = errors.New("tenant slug already exists")
	ErrConflictDatabase   = errors.New("tenant database mapping conflict")
	ErrAlreadyProvisioned = errors.New("tenant already provisioned")
	ErrValidation         = errors.New("tenant validation failed")
)

// Metadata bounds for the open string-to-string mapping.
const (
	MaxMetadataEntries     = 50
	MaxMetadataKeyLength   = 100
	MaxMetadataValueLength = 1000
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Tenant is the domain model for a tenant directory entry.
type Tenant struct {
	ID           uuid.UUID
	Slug         string
	DisplayName  *string
	DatabaseName string
	IsActive     bool
	Metadata     map[string]string
	CreatedAt    time.Time
	CreatedBy    string
	UpdatedAt    time.Time
	UpdatedBy    string
}

// CreateInput represents the request to create a tenant. Audit fields are
// stamped by the service, never by the caller.
type CreateInput struct {
	Slug        string
	DisplayName *string
	Metadata    map[string]string
}

// UpdateInput represents mutable fields of a tenant. Nil means unchanged.
type UpdateInput struct {
	DisplayName *string
	IsActive    *bool
	Metadata    map[string]string
}

// ListOptions captures pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts directory persistence.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, t Tenant) (Tenant, error)
	BindDatabaseName(ctx context.Context, id uuid.UUID, databaseName string, updatedAt time.Time, updatedBy string) (Tenant, error)
	SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error
}

// DBProvisionRequest asks the provisioner to create a tenant's physical
// database, apply the tenant-space schema, and write the identity record.
type DBProvisionRequest struct {
	TenantID      uuid.UUID
	Slug          string
	DatabaseName  string
	ProvisionedBy string
}

// DBProvisioner creates and stamps tenant databases.
type DBProvisioner interface {
	Ensure(ctx context.Context, req DBProvisionRequest) error
}

// Service provides tenant directory operations.
type Service struct {
	repo        Repository
	envKey      string
	provisioner DBProvisioner
}

// New constructs a Service with required dependencies.
func New(repo Repository, envKey string, provisioner DBProvisioner) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if envKey == "" {
		panic("envKey is required")
	}
	return &Service{repo: repo, envKey: envKey, provisioner: provisioner}
}

// Create registers a new tenant in the directory. The physical database is
// created later via Provision; until then the tenant resolves as
// not-provisioned and serves no traffic.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	if !slugPattern.MatchString(input.Slug) {
		return Tenant{}, fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrValidation)
	}
	if err := validateMetadata(input.Metadata); err != nil {
		return Tenant{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Tenant{}, fmt.Errorf("generate tenant id: %w", err)
	}

	now := time.Now().UTC()
	actor := requesttrace.FromContextOrAnonymous(ctx).Actor()

	t := Tenant{
		ID:          id,
		Slug:        input.Slug,
		DisplayName: input.DisplayName,
		IsActive:    true,
		Metadata:    input.Metadata,
		CreatedAt:   now,
		CreatedBy:   actor,
		UpdatedAt:   now,
		UpdatedBy:   actor,
	}

	return s.repo.Create(ctx, t)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List tenants, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Update modifies mutable fields of a tenant and stamps the audit columns.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Tenant, error) {
	if input.Metadata != nil {
		if err := validateMetadata(input.Metadata); err != nil {
			return Tenant{}, err
		}
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}

	next := current
	if input.DisplayName != nil {
		next.DisplayName = input.DisplayName
	}
	if input.IsActive != nil {
		next.IsActive = *input.IsActive
	}
	if input.Metadata != nil {
		next.Metadata = input.Metadata
	}
	next.UpdatedAt = time.Now().UTC()
	next.UpdatedBy = requesttrace.FromContextOrAnonymous(ctx).Actor()

	return s.repo.Update(ctx, next)
}

// Delete soft-deletes a tenant. The row and its database stay in place;
// resolution treats the tenant as not found from this point on.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id, time.Now().UTC(), requesttrace.FromContextOrAnonymous(ctx).Actor())
}

// Provision creates the tenant's physical database, writes its identity
// record, and binds the database name in the directory. The binding is
// permanent: re-provisioning an already-bound tenant is refused.
func (s *Service) Provision(ctx context.Context, id uuid.UUID) (Tenant, error) {
	if s.provisioner == nil {
		return Tenant{}, errors.New("provisioner is not configured")
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if current.DatabaseName != "" {
		return Tenant{}, fmt.Errorf("%w: tenant %s is bound to %q", ErrAlreadyProvisioned, id, current.DatabaseName)
	}

	actor := requesttrace.FromContextOrAnonymous(ctx).Actor()
	databaseName := tenant.BuildDatabaseName(s.envKey, current.Slug)

	if err := s.provisioner.Ensure(ctx, DBProvisionRequest{
		TenantID:      current.ID,
		Slug:          current.Slug,
		DatabaseName:  databaseName,
		ProvisionedBy: actor,
	}); err != nil {
		return Tenant{}, fmt.Errorf("provision tenant database: %w", err)
	}

	return s.repo.BindDatabaseName(ctx, id, databaseName, time.Now().UTC(), actor)
}

func validateMetadata(metadata map[string]string) error {
	if len(metadata) > MaxMetadataEntries {
		return fmt.Errorf("%w: metadata exceeds %d entries", ErrValidation, MaxMetadataEntries)
	}
	for k, v := range metadata {
		if k == "" || len(k) > MaxMetadataKeyLength {
			return fmt.Errorf("%w: metadata key length must be 1..%d", ErrValidation, MaxMetadataKeyLength)
		}
		if len(v) > MaxMetadataValueLength {
			return fmt.Errorf("%w: metadata value for %q exceeds %d chars", ErrValidation, k, MaxMetadataValueLength)
		}
	}
	return nil
}
