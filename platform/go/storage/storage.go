package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/learnstack-io/learnstack/platform/go/tenant"
)

// ErrObjectNotFound is returned by Get when the key has no stored blob.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore persists learning-object assets. Implementations must be safe for
// concurrent use.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// AssetKey builds the tenant-scoped object key for a learning-object asset.
// Keys are namespaced by the tenant's database name so one bucket can serve
// every tenant without collisions.
func AssetKey(space tenant.Space, objectID uuid.UUID, filename string) (string, error) {
	if space.DatabaseName == "" {
		return "", fmt.Errorf("tenant database name is missing")
	}
	if objectID == uuid.Nil {
		return "", fmt.Errorf("object id is required")
	}

	filename = strings.TrimPrefix(strings.TrimSpace(filename), "/")
	if filename == "" {
		return "", fmt.Errorf("filename is required")
	}
	if strings.Contains(filename, "..") {
		return "", fmt.Errorf("filename must not contain path traversal")
	}

	return fmt.Sprintf("%s/learning-objects/%s/%s", space.DatabaseName, objectID, filename), nil
}
