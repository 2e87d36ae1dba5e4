package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// TenantsTable is the tenant directory table in the shared database.
const TenantsTable = "tenants"

// Errors returned by the directory store.
var (
	// ErrNotFound is returned when a tenant record is missing or soft-deleted.
	ErrNotFound = errors.New("tenant not found")
	// ErrSlugConflict indicates a duplicate slug among live tenants.
	ErrSlugConflict = errors.New("tenant slug already exists")
	// ErrDatabaseNameConflict indicates an attempt to rebind a tenant to a
	// different physical database, or to reuse a database name already mapped
	// to another tenant. The tenant/database mapping is permanent once set.
	ErrDatabaseNameConflict = errors.New("tenant database mapping conflict")
)

// TenantRecord represents a tenant directory row.
type TenantRecord struct {
	TenantID      uuid.UUID         `db:"tenant_id"`
	Slug          string            `db:"slug"`
	DisplayName   *string           `db:"display_name"`
	DatabaseName  string            `db:"database_name"`
	IsActive      bool              `db:"is_active"`
	IsSoftDeleted bool              `db:"is_soft_deleted"`
	Metadata      map[string]string `db:"metadata"`
	CreatedAt     time.Time         `db:"created_at"`
	CreatedBy     string            `db:"created_by"`
	UpdatedAt     time.Time         `db:"updated_at"`
	UpdatedBy     string            `db:"updated_by"`
}

// DirectoryStore provides access to the shared tenant directory.
type DirectoryStore struct {
	pool *pgxpool.Pool
}

// NewDirectoryStore creates a store; assumes migrations already created the table.
func NewDirectoryStore(pool *pgxpool.Pool) (*DirectoryStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &DirectoryStore{pool: pool}, nil
}

const tenantColumns = `tenant_id, slug, display_name, database_name, is_active,
        is_soft_deleted, metadata, created_at, created_by, updated_at, updated_by`

// Create inserts a new tenant directory row.
func (s *DirectoryStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}

	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return TenantRecord{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            tenant_id, slug, display_name, database_name, is_active,
            is_soft_deleted, metadata, created_at, created_by, updated_at, updated_by
        ) VALUES (
            $1,$2,$3,$4,$5,FALSE,$6,$7,$8,$7,$8
        )
        RETURNING %s
    `, TenantsTable, tenantColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.TenantID, strings.TrimSpace(rec.Slug), rec.DisplayName, rec.DatabaseName,
		rec.IsActive, metadata, rec.CreatedAt, rec.CreatedBy,
	)

	out, err := scanTenantRecord(row)
	if err != nil {
		return TenantRecord{}, mapDirectoryConflict(err)
	}
	return out, nil
}

// Get fetches a tenant by id, excluding soft-deleted rows.
func (s *DirectoryStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE tenant_id = $1 AND is_soft_deleted = FALSE`, tenantColumns, TenantsTable)
	return scanTenantRecord(s.pool.QueryRow(ctx, query, id))
}

// GetBySlug returns a live tenant by slug.
func (s *DirectoryStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE slug = $1 AND is_soft_deleted = FALSE`, tenantColumns, TenantsTable)
	return scanTenantRecord(s.pool.QueryRow(ctx, query, slug))
}

// List returns paginated live tenants, newest first.
func (s *DirectoryStore) List(ctx context.Context, limit, offset int) ([]TenantRecord, int, error) {
	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE is_soft_deleted = FALSE", TenantsTable)
	if err := s.pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE is_soft_deleted = FALSE
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`, tenantColumns, TenantsTable)

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Update modifies the mutable fields of a tenant and stamps the audit columns.
func (s *DirectoryStore) Update(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return TenantRecord{}, err
	}

	query := fmt.Sprintf(`UPDATE %s
        SET display_name = $2, is_active = $3, metadata = $4, updated_at = $5, updated_by = $6
        WHERE tenant_id = $1 AND is_soft_deleted = FALSE
        RETURNING %s`, TenantsTable, tenantColumns)

	out, err := scanTenantRecord(s.pool.QueryRow(ctx, query,
		rec.TenantID, rec.DisplayName, rec.IsActive, metadata, rec.UpdatedAt, rec.UpdatedBy,
	))
	if err != nil {
		return TenantRecord{}, err
	}
	return out, nil
}

// BindDatabaseName records the tenant's physical database at provisioning time.
// A tenant already bound to a different database is never rebound; that path
// requires re-provisioning, not a directory edit.
func (s *DirectoryStore) BindDatabaseName(ctx context.Context, id uuid.UUID, databaseName string, updatedAt time.Time, updatedBy string) (TenantRecord, error) {
	databaseName = strings.TrimSpace(databaseName)
	if databaseName == "" {
		return TenantRecord{}, errors.New("database name is required")
	}

	query := fmt.Sprintf(`UPDATE %s
        SET database_name = $2, updated_at = $3, updated_by = $4
        WHERE tenant_id = $1 AND is_soft_deleted = FALSE
          AND (database_name = '' OR database_name = $2)
        RETURNING %s`, TenantsTable, tenantColumns)

	out, err := scanTenantRecord(s.pool.QueryRow(ctx, query, id, databaseName, updatedAt, updatedBy))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Distinguish a missing tenant from an existing conflicting binding.
			if _, getErr := s.Get(ctx, id); getErr == nil {
				return TenantRecord{}, ErrDatabaseNameConflict
			}
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, mapDirectoryConflict(err)
	}
	return out, nil
}

// SoftDelete marks a tenant as deleted; the row stays in storage and is
// excluded from all lookups.
func (s *DirectoryStore) SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error {
	query := fmt.Sprintf(`UPDATE %s
        SET is_soft_deleted = TRUE, is_active = FALSE, updated_at = $2, updated_by = $3
        WHERE tenant_id = $1 AND is_soft_deleted = FALSE`, TenantsTable)

	tag, err := s.pool.Exec(ctx, query, id, deletedAt, deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LookupTenant implements tenant.Directory for the connection resolver.
// Soft-deleted tenants surface as not found, never as a distinct state.
func (s *DirectoryStore) LookupTenant(ctx context.Context, tenantID uuid.UUID) (tenant.DirectoryEntry, error) {
	rec, err := s.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return tenant.DirectoryEntry{}, tenant.ErrTenantNotFound
		}
		return tenant.DirectoryEntry{}, err
	}

	return tenant.DirectoryEntry{
		TenantID:     rec.TenantID,
		Slug:         rec.Slug,
		DatabaseName: rec.DatabaseName,
		IsActive:     rec.IsActive,
	}, nil
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	var metadata []byte
	if err := row.Scan(
		&rec.TenantID, &rec.Slug, &rec.DisplayName, &rec.DatabaseName, &rec.IsActive,
		&rec.IsSoftDeleted, &metadata, &rec.CreatedAt, &rec.CreatedBy, &rec.UpdatedAt, &rec.UpdatedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return TenantRecord{}, fmt.Errorf("decode tenant metadata: %w", err)
		}
	}
	return rec, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode tenant metadata: %w", err)
	}
	return raw, nil
}

func mapDirectoryConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.EqualFold(pgErr.ConstraintName, "tenants_slug_unique_live"):
			return ErrSlugConflict
		case strings.EqualFold(pgErr.ConstraintName, "tenants_database_name_unique_live"):
			return ErrDatabaseNameConflict
		}
	}
	return err
}

// Ensure interface compliance.
var _ tenant.Directory = (*DirectoryStore)(nil)
