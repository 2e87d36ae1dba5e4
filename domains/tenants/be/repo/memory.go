package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnstack-io/learnstack/domains/tenants/be/service"
)

// Memory is an in-memory tenants repository used by unit tests and local
// tooling that does not want a database.
type Memory struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]service.Tenant
	deleted map[uuid.UUID]bool
}

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		tenants: map[uuid.UUID]service.Tenant{},
		deleted: map[uuid.UUID]bool{},
	}
}

func (m *Memory) Create(_ context.Context, t service.Tenant) (service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.tenants {
		if m.deleted[id] {
			continue
		}
		if existing.Slug == t.Slug {
			return service.Tenant{}, service.ErrConflictSlug
		}
		if t.DatabaseName != "" && existing.DatabaseName == t.DatabaseName {
			return service.Tenant{}, service.ErrConflictDatabase
		}
	}

	m.tenants[t.ID] = cloneTenant(t)
	return cloneTenant(t), nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (service.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live(id)
}

func (m *Memory) FindBySlug(_ context.Context, slug string) (service.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, t := range m.tenants {
		if !m.deleted[id] && t.Slug == slug {
			return cloneTenant(t), nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (m *Memory) List(_ context.Context, opts service.ListOptions) (service.ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var all []service.Tenant
	for id, t := range m.tenants {
		if !m.deleted[id] {
			all = append(all, cloneTenant(t))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	return service.ListResult{
		Tenants:    all[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (m *Memory) Update(_ context.Context, t service.Tenant) (service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.live(t.ID); err != nil {
		return service.Tenant{}, err
	}
	m.tenants[t.ID] = cloneTenant(t)
	return cloneTenant(t), nil
}

func (m *Memory) BindDatabaseName(_ context.Context, id uuid.UUID, databaseName string, updatedAt time.Time, updatedBy string) (service.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.live(id)
	if err != nil {
		return service.Tenant{}, err
	}
	if current.DatabaseName != "" && current.DatabaseName != databaseName {
		return service.Tenant{}, service.ErrConflictDatabase
	}
	for otherID, other := range m.tenants {
		if otherID != id && !m.deleted[otherID] && other.DatabaseName == databaseName {
			return service.Tenant{}, service.ErrConflictDatabase
		}
	}

	current.DatabaseName = databaseName
	current.UpdatedAt = updatedAt
	current.UpdatedBy = updatedBy
	m.tenants[id] = cloneTenant(current)
	return current, nil
}

func (m *Memory) SoftDelete(_ context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.live(id)
	if err != nil {
		return err
	}
	current.IsActive = false
	current.UpdatedAt = deletedAt
	current.UpdatedBy = deletedBy
	m.tenants[id] = current
	m.deleted[id] = true
	return nil
}

func (m *Memory) live(id uuid.UUID) (service.Tenant, error) {
	t, ok := m.tenants[id]
	if !ok || m.deleted[id] {
		return service.Tenant{}, service.ErrNotFound
	}
	return cloneTenant(t), nil
}

func cloneTenant(t service.Tenant) service.Tenant {
	out := t
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

var _ service.Repository = (*Memory)(nil)
