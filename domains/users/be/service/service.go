package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnstack-io/learnstack/platform/go/requesttrace"
)

// Errors returned by the users service.
var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailConflict = errors.New("email already registered")
	ErrValidation    = errors.New("user validation failed")
)

// Roles a tenant-scoped user can hold.
const (
	RoleLearner     = "learner"
	RoleInstructor  = "instructor"
	RoleTenantAdmin = "tenant-admin"
)

var validRoles = map[string]bool{
	RoleLearner:     true,
	RoleInstructor:  true,
	RoleTenantAdmin: true,
}

// User is a member of the current tenant. Rows live in the tenant's own
// database, so no tenant id column appears here.
type User struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	Role      string
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
	UpdatedBy string
}

// CreateInput for registering a user.
type CreateInput struct {
	Email    string
	FullName string
	Role     string
}

// UpdateInput mutates a user. Nil means unchanged.
type UpdateInput struct {
	FullName *string
	Role     *string
}

// ListOptions captures pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResult wraps paginated users.
type ListResult struct {
	Users      []User
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository persists users inside the request's tenant database.
type Repository interface {
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, u User) (User, error)
	SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error
}

// Service provides user operations within the current tenant.
type Service struct {
	repo Repository
}

// New constructs a Service.
func New(repo Repository) *Service {
	if repo == nil {
		panic("users repo is required")
	}
	return &Service{repo: repo}
}

// Create registers a new user in the tenant.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	role := input.Role
	if role == "" {
		role = RoleLearner
	}
	if !validRoles[role] {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	actor := requesttrace.FromContextOrAnonymous(ctx).Actor()

	return s.repo.Create(ctx, User{
		ID:        id,
		Email:     email,
		FullName:  strings.TrimSpace(input.FullName),
		Role:      role,
		CreatedAt: now,
		CreatedBy: actor,
		UpdatedAt: now,
		UpdatedBy: actor,
	})
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.Get(ctx, id)
}

// List users, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Update modifies a user and stamps the audit columns.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (User, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}

	if input.FullName != nil {
		current.FullName = strings.TrimSpace(*input.FullName)
	}
	if input.Role != nil {
		if !validRoles[*input.Role] {
			return User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, *input.Role)
		}
		current.Role = *input.Role
	}
	current.UpdatedAt = time.Now().UTC()
	current.UpdatedBy = requesttrace.FromContextOrAnonymous(ctx).Actor()

	return s.repo.Update(ctx, current)
}

// Delete soft-deletes a user.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id, time.Now().UTC(), requesttrace.FromContextOrAnonymous(ctx).Actor())
}
