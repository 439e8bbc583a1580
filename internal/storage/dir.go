package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DirFetcher serves objects from <root>/<bucket>/<name> on the local disk.
// It backs local runs against a copy of the bucket.
type DirFetcher struct {
	root string
}

// NewDirFetcher returns a fetcher rooted at dir.
func NewDirFetcher(dir string) *DirFetcher {
	return &DirFetcher{root: filepath.Clean(dir)}
}

// Fetch reads the object file.
func (f *DirFetcher) Fetch(ctx context.Context, bucket, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if (bucket != "" && !filepath.IsLocal(bucket)) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, fmt.Errorf("%w: %s/%s", ErrFileNotFound, bucket, name)
	}

	path := filepath.Join(f.root, bucket, filepath.FromSlash(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, path, err)
	}
	return data, nil
}

// Close is a no-op.
func (f *DirFetcher) Close() error {
	return nil
}
