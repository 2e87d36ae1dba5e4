package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DatabaseNamePlaceholder is the token replaced in the connection-string
// template with a tenant's physical database name.
const DatabaseNamePlaceholder = "{DatabaseName}"

var (
	// ErrTenantNotFound covers missing, soft-deleted and deactivated tenants.
	// Callers must not distinguish the three towards clients.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantMisconfigured indicates an active tenant whose database has not
	// been provisioned yet.
	ErrTenantMisconfigured = errors.New("tenant database not provisioned")
)

// DirectoryEntry is the slice of a tenant directory row the resolver needs.
type DirectoryEntry struct {
	TenantID     uuid.UUID
	Slug         string
	DatabaseName string
	IsActive     bool
}

// Directory is the minimal lookup surface over the shared tenant directory.
// Implementations must exclude soft-deleted tenants and signal absence with
// ErrTenantNotFound.
type Directory interface {
	LookupTenant(ctx context.Context, tenantID uuid.UUID) (DirectoryEntry, error)
}

// Target describes the physical database a resolved tenant routes to.
type Target struct {
	TenantID     uuid.UUID
	Slug         string
	DatabaseName string
	ConnString   string
}

// Resolver maps a tenant id to a connection target using the shared directory
// and the per-environment connection-string template. It performs a fresh
// directory read on every call; results are never cached across requests.
type Resolver struct {
	directory Directory
	template  string
}

// NewResolver validates the template and constructs a Resolver.
func NewResolver(directory Directory, template string) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("tenant directory is required")
	}
	if !strings.Contains(template, DatabaseNamePlaceholder) {
		return nil, fmt.Errorf("connection template must contain %s", DatabaseNamePlaceholder)
	}
	return &Resolver{directory: directory, template: template}, nil
}

// Resolve looks up an active tenant and builds its connection target.
// Pure read; the tenant database itself is not touched here.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID) (Target, error) {
	if tenantID == uuid.Nil {
		return Target{}, ErrTenantNotFound
	}

	entry, err := r.directory.LookupTenant(ctx, tenantID)
	if err != nil {
		return Target{}, err
	}
	if !entry.IsActive {
		return Target{}, ErrTenantNotFound
	}

	dbName := strings.TrimSpace(entry.DatabaseName)
	if dbName == "" {
		return Target{}, fmt.Errorf("tenant %s: %w", tenantID, ErrTenantMisconfigured)
	}

	return Target{
		TenantID:     entry.TenantID,
		Slug:         entry.Slug,
		DatabaseName: dbName,
		ConnString:   strings.ReplaceAll(r.template, DatabaseNamePlaceholder, dbName),
	}, nil
}
