package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnstack-io/learnstack/domains/learning-objects/be/service"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
)

// Postgres reads and writes learning objects through the request's tenant
// connection.
type Postgres struct{}

// NewPostgres constructs the repository.
func NewPostgres() *Postgres {
	return &Postgres{}
}

const objectColumns = `object_id, object_type, title, description, content, is_published,
        created_at, created_by, updated_at, updated_by`

func (p *Postgres) Create(ctx context.Context, obj service.LearningObject) (service.LearningObject, error) {
	conn, err := tenantConn(ctx)
	if err != nil {
		return service.LearningObject{}, err
	}

	row := conn.QueryRow(ctx, `
        INSERT INTO learning_objects (object_id, object_type, title, description, content,
            is_published, created_at, created_by, updated_at, updated_by)
        VALUES ($1,$2,$3,$4,$5,FALSE,$6,$7,$6,$7)
        RETURNING `+objectColumns,
		obj.ID, obj.ObjectType, obj.Title, obj.Description, []byte(obj.Content),
		obj.CreatedAt, obj.CreatedBy,
	)
	return scanObject(row)
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (service.LearningObject, error) {
	conn, err := tenantConn(ctx)
	if err != nil {
		return service.LearningObject{}, err
	}

	row := conn.QueryRow(ctx, `
        SELECT `+objectColumns+` FROM learning_objects
        WHERE object_id = $1 AND is_soft_deleted = FALSE`, id)
	return scanObject(row)
}

func (p *Postgres) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	conn, err := tenantConn(ctx)
	if err != nil {
		return service.ListResult{}, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	filter := "is_soft_deleted = FALSE"
	args := []any{pageSize, (page - 1) * pageSize}
	countArgs := []any{}
	if opts.ObjectType != "" {
		filter += " AND object_type = $3"
		args = append(args, opts.ObjectType)
		countArgs = append(countArgs, opts.ObjectType)
	}

	countFilter := "is_soft_deleted = FALSE"
	if opts.ObjectType != "" {
		countFilter += " AND object_type = $1"
	}

	var total int
	if err := conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM learning_objects WHERE "+countFilter, countArgs...,
	).Scan(&total); err != nil {
		return service.ListResult{}, err
	}

	rows, err := conn.Query(ctx, `
        SELECT `+objectColumns+` FROM learning_objects
        WHERE `+filter+`
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return service.ListResult{}, err
	}
	defer rows.Close()

	var objects []service.LearningObject
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return service.ListResult{}, err
		}
		objects = append(objects, obj)
	}
	if err = rows.Err(); err != nil {
		return service.ListResult{}, err
	}

	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	return service.ListResult{
		Objects:    objects,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (p *Postgres) Update(ctx context.Context, obj service.LearningObject) (service.LearningObject, error) {
	conn, err := tenantConn(ctx)
	if err != nil {
		return service.LearningObject{}, err
	}

	row := conn.QueryRow(ctx, `
        UPDATE learning_objects
        SET title = $2, description = $3, content = $4, is_published = $5,
            updated_at = $6, updated_by = $7
        WHERE object_id = $1 AND is_soft_deleted = FALSE
        RETURNING `+objectColumns,
		obj.ID, obj.Title, obj.Description, []byte(obj.Content), obj.IsPublished,
		obj.UpdatedAt, obj.UpdatedBy,
	)
	return scanObject(row)
}

func (p *Postgres) SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error {
	conn, err := tenantConn(ctx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `
        UPDATE learning_objects
        SET is_soft_deleted = TRUE, updated_at = $2, updated_by = $3
        WHERE object_id = $1 AND is_soft_deleted = FALSE`, id, deletedAt, deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func tenantConn(ctx context.Context) (*pgx.Conn, error) {
	tc, ok := persistence.TenantConnFromContext(ctx)
	if !ok {
		return nil, errors.New("no tenant connection in context")
	}
	return tc.Conn(), nil
}

func scanObject(row pgx.Row) (service.LearningObject, error) {
	var obj service.LearningObject
	var content []byte
	if err := row.Scan(
		&obj.ID, &obj.ObjectType, &obj.Title, &obj.Description, &content, &obj.IsPublished,
		&obj.CreatedAt, &obj.CreatedBy, &obj.UpdatedAt, &obj.UpdatedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.LearningObject{}, service.ErrNotFound
		}
		return service.LearningObject{}, err
	}
	obj.Content = content
	return obj, nil
}

var _ service.Repository = (*Postgres)(nil)
