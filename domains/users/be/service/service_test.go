package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/learnstack-io/learnstack/domains/users/be/service"
)

type stubRepo struct {
	users   map[uuid.UUID]service.User
	deleted []uuid.UUID
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: map[uuid.UUID]service.User{}}
}

func (r *stubRepo) Create(ctx context.Context, u service.User) (service.User, error) {
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return service.User{}, service.ErrEmailConflict
		}
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *stubRepo) Get(ctx context.Context, id uuid.UUID) (service.User, error) {
	u, ok := r.users[id]
	if !ok {
		return service.User{}, service.ErrNotFound
	}
	return u, nil
}

func (r *stubRepo) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	result := service.ListResult{Page: opts.Page, PageSize: opts.PageSize}
	for _, u := range r.users {
		result.Users = append(result.Users, u)
	}
	result.TotalItems = len(result.Users)
	return result, nil
}

func (r *stubRepo) Update(ctx context.Context, u service.User) (service.User, error) {
	if _, ok := r.users[u.ID]; !ok {
		return service.User{}, service.ErrNotFound
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *stubRepo) SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error {
	if _, ok := r.users[id]; !ok {
		return service.ErrNotFound
	}
	delete(r.users, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func TestCreateNormalizesEmailAndDefaultsRole(t *testing.T) {
	svc := service.New(newStubRepo())

	u, err := svc.Create(context.Background(), service.CreateInput{
		Email:    "  Alice@Example.COM ",
		FullName: "  Alice A ",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, "Alice A", u.FullName)
	require.Equal(t, service.RoleLearner, u.Role)
	require.NotEqual(t, uuid.Nil, u.ID)
	require.False(t, u.CreatedAt.IsZero())
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := service.New(newStubRepo())

	cases := map[string]service.CreateInput{
		"empty email":  {Email: "", FullName: "X"},
		"not an email": {Email: "not-an-email", FullName: "X"},
		"unknown role": {Email: "a@example.com", Role: "superuser"},
		"spaces only":  {Email: "   ", FullName: "X"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), input)
			require.ErrorIs(t, err, service.ErrValidation)
		})
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc := service.New(newStubRepo())

	_, err := svc.Create(context.Background(), service.CreateInput{Email: "a@example.com"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), service.CreateInput{Email: "A@EXAMPLE.COM"})
	require.ErrorIs(t, err, service.ErrEmailConflict)
}

func TestUpdate(t *testing.T) {
	repo := newStubRepo()
	svc := service.New(repo)

	u, err := svc.Create(context.Background(), service.CreateInput{Email: "a@example.com", FullName: "Alice"})
	require.NoError(t, err)

	name := "Alice Updated"
	role := service.RoleInstructor
	updated, err := svc.Update(context.Background(), u.ID, service.UpdateInput{FullName: &name, Role: &role})
	require.NoError(t, err)
	require.Equal(t, "Alice Updated", updated.FullName)
	require.Equal(t, service.RoleInstructor, updated.Role)

	bad := "superuser"
	_, err = svc.Update(context.Background(), u.ID, service.UpdateInput{Role: &bad})
	require.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.Update(context.Background(), uuid.New(), service.UpdateInput{FullName: &name})
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo := newStubRepo()
	svc := service.New(repo)

	u, err := svc.Create(context.Background(), service.CreateInput{Email: "a@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), u.ID))
	require.Equal(t, []uuid.UUID{u.ID}, repo.deleted)

	_, err = svc.Get(context.Background(), u.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
}
