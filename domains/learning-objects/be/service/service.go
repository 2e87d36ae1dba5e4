package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/learnstack-io/learnstack/platform/go/requesttrace"
	"github.com/learnstack-io/learnstack/platform/go/storage"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// Errors returned by the learning-objects service.
var (
	ErrNotFound   = errors.New("learning object not found")
	ErrValidation = errors.New("learning object validation failed")
)

// Supported object types. Each has a content schema under schemas/.
const (
	TypeCourse = "course"
	TypeLesson = "lesson"
	TypeQuiz   = "quiz"
)

// ObjectTypes lists every supported type.
var ObjectTypes = []string{TypeCourse, TypeLesson, TypeQuiz}

const maxTitleLength = 500

// LearningObject is a tenant-scoped piece of course material.
type LearningObject struct {
	ID          uuid.UUID
	ObjectType  string
	Title       string
	Description string
	Content     json.RawMessage
	IsPublished bool
	CreatedAt   time.Time
	CreatedBy   string
	UpdatedAt   time.Time
	UpdatedBy   string
}

// CreateInput for a new learning object.
type CreateInput struct {
	ObjectType  string
	Title       string
	Description string
	Content     json.RawMessage
}

// UpdateInput mutates a learning object. Nil means unchanged; the object type
// is fixed at creation.
type UpdateInput struct {
	Title       *string
	Description *string
	Content     json.RawMessage
	IsPublished *bool
}

// ListOptions captures pagination and the optional type filter.
type ListOptions struct {
	Page       int
	PageSize   int
	ObjectType string
}

// ListResult wraps paginated learning objects.
type ListResult struct {
	Objects    []LearningObject
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository persists learning objects inside the request's tenant database.
type Repository interface {
	Create(ctx context.Context, obj LearningObject) (LearningObject, error)
	Get(ctx context.Context, id uuid.UUID) (LearningObject, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, obj LearningObject) (LearningObject, error)
	SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error
}

// Service provides learning-object operations within the current tenant.
type Service struct {
	repo  Repository
	blobs storage.BlobStore
}

// New constructs a Service. The blob store may be nil when asset endpoints
// are disabled.
func New(repo Repository, blobs storage.BlobStore) *Service {
	if repo == nil {
		panic("learning-objects repo is required")
	}
	return &Service{repo: repo, blobs: blobs}
}

// Create validates and stores a new learning object.
func (s *Service) Create(ctx context.Context, input CreateInput) (LearningObject, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return LearningObject{}, fmt.Errorf("%w: title length must be 1..%d", ErrValidation, maxTitleLength)
	}
	if err := validateContent(input.ObjectType, input.Content); err != nil {
		return LearningObject{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return LearningObject{}, fmt.Errorf("generate object id: %w", err)
	}

	now := time.Now().UTC()
	actor := requesttrace.FromContextOrAnonymous(ctx).Actor()

	content := input.Content
	if len(content) == 0 {
		content = json.RawMessage("{}")
	}

	return s.repo.Create(ctx, LearningObject{
		ID:          id,
		ObjectType:  input.ObjectType,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Content:     content,
		CreatedAt:   now,
		CreatedBy:   actor,
		UpdatedAt:   now,
		UpdatedBy:   actor,
	})
}

// Get returns a learning object by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (LearningObject, error) {
	return s.repo.Get(ctx, id)
}

// List learning objects, newest first, optionally filtered by type.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if opts.ObjectType != "" {
		if _, ok := contentSchemas[opts.ObjectType]; !ok {
			return ListResult{}, fmt.Errorf("%w: unknown object type %q", ErrValidation, opts.ObjectType)
		}
	}
	return s.repo.List(ctx, opts)
}

// Update modifies a learning object and re-validates its content.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (LearningObject, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return LearningObject{}, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > maxTitleLength {
			return LearningObject{}, fmt.Errorf("%w: title length must be 1..%d", ErrValidation, maxTitleLength)
		}
		current.Title = title
	}
	if input.Description != nil {
		current.Description = strings.TrimSpace(*input.Description)
	}
	if input.Content != nil {
		if err := validateContent(current.ObjectType, input.Content); err != nil {
			return LearningObject{}, err
		}
		current.Content = input.Content
	}
	if input.IsPublished != nil {
		current.IsPublished = *input.IsPublished
	}
	current.UpdatedAt = time.Now().UTC()
	current.UpdatedBy = requesttrace.FromContextOrAnonymous(ctx).Actor()

	return s.repo.Update(ctx, current)
}

// Delete soft-deletes a learning object. Stored assets stay in place.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id, time.Now().UTC(), requesttrace.FromContextOrAnonymous(ctx).Actor())
}

// UploadAsset stores an asset blob under the tenant's namespace and returns
// the storage key. The object must exist in the current tenant.
func (s *Service) UploadAsset(ctx context.Context, id uuid.UUID, filename, contentType string, data io.Reader) (string, error) {
	if s.blobs == nil {
		return "", errors.New("asset storage is not configured")
	}

	if _, err := s.repo.Get(ctx, id); err != nil {
		return "", err
	}

	space, ok := tenant.FromContext(ctx)
	if !ok {
		return "", errors.New("no tenant in context")
	}

	key, err := storage.AssetKey(space, id, filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.blobs.Put(ctx, key, contentType, data); err != nil {
		return "", fmt.Errorf("store asset: %w", err)
	}
	return key, nil
}

// DownloadAsset opens an asset stream for the given object and filename.
func (s *Service) DownloadAsset(ctx context.Context, id uuid.UUID, filename string) (io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, errors.New("asset storage is not configured")
	}

	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	space, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, errors.New("no tenant in context")
	}

	key, err := storage.AssetKey(space, id, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.blobs.Get(ctx, key)
}
