package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/learnstack-io/learnstack/domains/tenants/be/service"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
)

// Postgres adapts the shared directory store to the tenants service.
type Postgres struct {
	store *persistence.DirectoryStore
}

// NewPostgres wraps a directory store.
func NewPostgres(store *persistence.DirectoryStore) *Postgres {
	if store == nil {
		panic("directory store is required")
	}
	return &Postgres{store: store}
}

func (p *Postgres) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := p.store.Create(ctx, toRecord(t))
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return fromRecord(rec), nil
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return fromRecord(rec), nil
}

func (p *Postgres) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	rec, err := p.store.GetBySlug(ctx, slug)
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return fromRecord(rec), nil
}

func (p *Postgres) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	records, total, err := p.store.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return service.ListResult{}, mapStoreError(err)
	}

	tenants := make([]service.Tenant, 0, len(records))
	for _, rec := range records {
		tenants = append(tenants, fromRecord(rec))
	}

	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	return service.ListResult{
		Tenants:    tenants,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (p *Postgres) Update(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := p.store.Update(ctx, toRecord(t))
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return fromRecord(rec), nil
}

func (p *Postgres) BindDatabaseName(ctx context.Context, id uuid.UUID, databaseName string, updatedAt time.Time, updatedBy string) (service.Tenant, error) {
	rec, err := p.store.BindDatabaseName(ctx, id, databaseName, updatedAt, updatedBy)
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return fromRecord(rec), nil
}

func (p *Postgres) SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error {
	if err := p.store.SoftDelete(ctx, id, deletedAt, deletedBy); err != nil {
		return mapStoreError(err)
	}
	return nil
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	return persistence.TenantRecord{
		TenantID:     t.ID,
		Slug:         t.Slug,
		DisplayName:  t.DisplayName,
		DatabaseName: t.DatabaseName,
		IsActive:     t.IsActive,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt,
		CreatedBy:    t.CreatedBy,
		UpdatedAt:    t.UpdatedAt,
		UpdatedBy:    t.UpdatedBy,
	}
}

func fromRecord(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:           rec.TenantID,
		Slug:         rec.Slug,
		DisplayName:  rec.DisplayName,
		DatabaseName: rec.DatabaseName,
		IsActive:     rec.IsActive,
		Metadata:     rec.Metadata,
		CreatedAt:    rec.CreatedAt,
		CreatedBy:    rec.CreatedBy,
		UpdatedAt:    rec.UpdatedAt,
		UpdatedBy:    rec.UpdatedBy,
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrSlugConflict):
		return service.ErrConflictSlug
	case errors.Is(err, persistence.ErrDatabaseNameConflict):
		return service.ErrConflictDatabase
	default:
		return err
	}
}

var _ service.Repository = (*Postgres)(nil)
