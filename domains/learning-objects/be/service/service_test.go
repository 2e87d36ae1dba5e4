package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/learnstack-io/learnstack/domains/learning-objects/be/service"
	"github.com/learnstack-io/learnstack/platform/go/storage"
	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

type stubRepo struct {
	objects map[uuid.UUID]service.LearningObject
}

func newStubRepo() *stubRepo {
	return &stubRepo{objects: map[uuid.UUID]service.LearningObject{}}
}

func (r *stubRepo) Create(ctx context.Context, obj service.LearningObject) (service.LearningObject, error) {
	r.objects[obj.ID] = obj
	return obj, nil
}

func (r *stubRepo) Get(ctx context.Context, id uuid.UUID) (service.LearningObject, error) {
	obj, ok := r.objects[id]
	if !ok {
		return service.LearningObject{}, service.ErrNotFound
	}
	return obj, nil
}

func (r *stubRepo) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	result := service.ListResult{Page: opts.Page, PageSize: opts.PageSize}
	for _, obj := range r.objects {
		if opts.ObjectType != "" && obj.ObjectType != opts.ObjectType {
			continue
		}
		result.Objects = append(result.Objects, obj)
	}
	result.TotalItems = len(result.Objects)
	return result, nil
}

func (r *stubRepo) Update(ctx context.Context, obj service.LearningObject) (service.LearningObject, error) {
	if _, ok := r.objects[obj.ID]; !ok {
		return service.LearningObject{}, service.ErrNotFound
	}
	r.objects[obj.ID] = obj
	return obj, nil
}

func (r *stubRepo) SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time, deletedBy string) error {
	if _, ok := r.objects[id]; !ok {
		return service.ErrNotFound
	}
	delete(r.objects, id)
	return nil
}

func TestCreateValidatesTitleAndContent(t *testing.T) {
	svc := service.New(newStubRepo(), nil)
	ctx := context.Background()

	obj, err := svc.Create(ctx, service.CreateInput{
		ObjectType: service.TypeLesson,
		Title:      "  Intro to Go  ",
		Content:    json.RawMessage(`{"body":"hello","format":"markdown"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "Intro to Go", obj.Title)
	require.Equal(t, service.TypeLesson, obj.ObjectType)
	require.NotEqual(t, uuid.Nil, obj.ID)

	_, err = svc.Create(ctx, service.CreateInput{ObjectType: service.TypeLesson, Title: "   "})
	require.ErrorIs(t, err, service.ErrValidation)

	long := bytes.Repeat([]byte("x"), 501)
	_, err = svc.Create(ctx, service.CreateInput{ObjectType: service.TypeLesson, Title: string(long)})
	require.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.Create(ctx, service.CreateInput{
		ObjectType: service.TypeQuiz,
		Title:      "Empty quiz",
		Content:    json.RawMessage(`{"questions":[]}`),
	})
	require.ErrorIs(t, err, service.ErrValidation)
}

func TestCreateDefaultsEmptyContent(t *testing.T) {
	svc := service.New(newStubRepo(), nil)

	obj, err := svc.Create(context.Background(), service.CreateInput{
		ObjectType: service.TypeCourse,
		Title:      "Untitled course",
	})
	require.NoError(t, err)
	require.JSONEq(t, "{}", string(obj.Content))
}

func TestUpdateRevalidatesContent(t *testing.T) {
	svc := service.New(newStubRepo(), nil)
	ctx := context.Background()

	obj, err := svc.Create(ctx, service.CreateInput{ObjectType: service.TypeLesson, Title: "Draft"})
	require.NoError(t, err)

	published := true
	updated, err := svc.Update(ctx, obj.ID, service.UpdateInput{
		Content:     json.RawMessage(`{"body":"done","format":"html"}`),
		IsPublished: &published,
	})
	require.NoError(t, err)
	require.True(t, updated.IsPublished)

	_, err = svc.Update(ctx, obj.ID, service.UpdateInput{
		Content: json.RawMessage(`{"format":"pdf"}`),
	})
	require.ErrorIs(t, err, service.ErrValidation)
}

func TestListRejectsUnknownTypeFilter(t *testing.T) {
	svc := service.New(newStubRepo(), nil)

	_, err := svc.List(context.Background(), service.ListOptions{ObjectType: "webinar"})
	require.ErrorIs(t, err, service.ErrValidation)
}

func TestAssetRoundTrip(t *testing.T) {
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	svc := service.New(newStubRepo(), blobs)
	ctx := tenant.WithSpace(context.Background(), tenant.Space{
		TenantID:     uuid.New(),
		Slug:         "acme",
		DatabaseName: "dev_tenant_acme",
	})

	obj, err := svc.Create(ctx, service.CreateInput{ObjectType: service.TypeCourse, Title: "With assets"})
	require.NoError(t, err)

	key, err := svc.UploadAsset(ctx, obj.ID, "syllabus.pdf", "application/pdf", bytes.NewReader([]byte("pdf bytes")))
	require.NoError(t, err)
	require.Equal(t, "dev_tenant_acme/learning-objects/"+obj.ID.String()+"/syllabus.pdf", key)

	rc, err := svc.DownloadAsset(ctx, obj.ID, "syllabus.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "pdf bytes", string(data))

	// Unknown object never reaches storage.
	_, err = svc.UploadAsset(ctx, uuid.New(), "x.pdf", "application/pdf", bytes.NewReader(nil))
	require.ErrorIs(t, err, service.ErrNotFound)

	// Missing tenant context is refused.
	_, err = svc.DownloadAsset(context.Background(), obj.ID, "syllabus.pdf")
	require.Error(t, err)
}
