// Package artifact stores model files produced by experiment runs. The
// stores implement automl.ArtifactStore.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrInvalidKey is returned for keys that are empty or escape the store.
var ErrInvalidKey = errors.New("invalid artifact key")

// FileStore keeps artifacts as files under a root directory. Writes go to a
// temporary file that is renamed into place, so readers never see a partial
// model.
type FileStore struct {
	root string
}

// NewFileStore creates root when missing.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("artifact directory is required")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	return &FileStore{root: root}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// Put implements automl.ArtifactStore. size is advisory; a short read is an
// error when size is not negative.
func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	// Removing after a successful rename fails harmlessly.
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write %s: %w", key, err)
	}

	if size >= 0 && n != size {
		_ = tmp.Close()

		return fmt.Errorf("write %s: wrote %d bytes, expected %d", key, n, size)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}

	return nil
}

// Open returns the artifact content and its size.
func (s *FileStore) Open(key string) (io.ReadCloser, int64, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, 0, err
	}

	return f, info.Size(), nil
}

// List returns the sorted keys of the store, slash separated.
func (s *FileStore) List() ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || isTemp(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		keys = append(keys, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *FileStore) path(key string) (string, error) {
	local := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(s.root, local), nil
}

func isTemp(name string) bool {
	return len(name) > 5 && name[:5] == ".tmp-"
}
