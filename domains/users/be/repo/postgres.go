package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/learnstack-io/learnstack/domains/users/be/service"
	"github.com/learnstack-io/learnstack/platform/go/persistence"
)

// Postgres reads and writes users through the request's tenant connection.
// Every query runs against the database picked by tenant resolution, so the
// SQL itself carries no tenant filter.
type Postgres struct{}

// NewPostgres constructs the repository.
func NewPostgres() *Postgres {
	return &Postgres{}
}

const userColumns = `user_id, email, full_name, role, created_at, created_by, updated_at, updated_by`

func (p *Postgres) Create(ctx context.Context, u service.User) (service.User, error) {
	conn, err := tenantConn(ctx)
	if err != nil {
		return service.User{}, err
	}

	row := conn.QueryRow(ctx, `
        INSERT INTO users (user_id, email, full_name, role, created_at, created_by, updated_at, updated_by)
        VALUES ($1,$2,$3,$4,$5,$6,$5,$6)
        RETURNING `+userColumns,
		u.ID, u.Email, u.FullName, u.Role, u.CreatedAt, u.CreatedBy,
	)

	out, err := scanUser(row)
	if err != nil {
		return service.User{}, mapUserError(err)
	}
	return out, nil
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (service.User, error) {
	conn, err := tenantConn(ctx)
	if err != nil {
		return service.User{}, err
	}

	row := conn.QueryRow(ctx, `
        SELECT `+userColumns+` FROM users
        WHERE user_id = $1 AND is_soft_deleted = FALSE`, id)
	return scanUser(row)
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

	var total int
	if err := conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM users WHERE is_soft_deleted = FALSE",
	).Scan(&total); err != nil {
		return service.ListResult{}, err
	}

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+` FROM users
        WHERE is_soft_deleted = FALSE
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`, pageSize, (page-1)*pageSize)
	if err != nil {
		return service.ListResult{}, err
	}
	defer rows.Close()

	var users []service.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return service.ListResult{}, err
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return service.ListResult{}, err
	}

	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	return service.ListResult{
		Users:      users,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (p *Postgres) Update(ctx context.Context, u service.User) (service.User, error) {
	conn, err := tenantConn(ctx)
	if err != nil {
		return service.User{}, err
	}

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET full_name = $2, role = $3, updated_at = $4, updated_by = $5
        WHERE user_id = $1 AND is_soft_deleted = FALSE
        RETURNING `+userColumns,
		u.ID, u.FullName, u.Role, u.UpdatedAt, u.UpdatedBy,
	)
	return scanUser(row)
}

func (p *Postgres) SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error {
	conn, err := tenantConn(ctx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET is_soft_deleted = TRUE, updated_at = $2, updated_by = $3
        WHERE user_id = $1 AND is_soft_deleted = FALSE`, id, deletedAt, deletedBy)
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

func scanUser(row pgx.Row) (service.User, error) {
	var u service.User
	if err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.Role,
		&u.CreatedAt, &u.CreatedBy, &u.UpdatedAt, &u.UpdatedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.User{}, service.ErrNotFound
		}
		return service.User{}, err
	}
	return u, nil
}

func mapUserError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return service.ErrEmailConflict
	}
	return err
}

var _ service.Repository = (*Postgres)(nil)
