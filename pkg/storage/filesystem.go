package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem is an ObjectStore backed by a directory tree: buckets are
// first-level directories under the root and keys are paths inside them.
type FileSystem struct {
	root string
}

// NewFileSystem creates a store rooted at the given directory.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root: root}
}

// Get reads the object at root/bucket/key. Path traversal outside the
// bucket is rejected.
func (f *FileSystem) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("storage: bucket and key must not be empty")
	}

	path, err := f.resolve(bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &KeyNotFoundError{Bucket: bucket, Key: key}
		}
		return nil, fmt.Errorf("storage: read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (f *FileSystem) resolve(bucket, key string) (string, error) {
	base := filepath.Join(f.root, filepath.Clean("/"+bucket))
	path := filepath.Join(base, filepath.Clean("/"+key))
	if path != base && !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: key %q escapes its bucket", key)
	}
	return path, nil
}
