package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps a single snapshot file, replaced by writing a temp file and renaming it.
type FileStore struct {
	path string
}

// NewFileStore returns a store for the snapshot at path. Parent directories are created if they do not exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Save writes data next to the target, syncs it and renames it into place.
func (s *FileStore) Save(ctx context.Context, data []byte) (SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotInfo{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return SnapshotInfo{}, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return SnapshotInfo{}, fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return s.stat()
}

// Load reads the snapshot file.
func (s *FileStore) Load(ctx context.Context) ([]byte, SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, SnapshotInfo{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, SnapshotInfo{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, s.path)
		}
		return nil, SnapshotInfo{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	info, err := s.stat()
	if err != nil {
		return nil, SnapshotInfo{}, err
	}
	return data, info, nil
}

// Get returns the snapshot when id names it. The file store retains only the latest snapshot,
// whose id is its path.
func (s *FileStore) Get(ctx context.Context, id string) ([]byte, SnapshotInfo, error) {
	if id != s.path {
		return nil, SnapshotInfo{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return s.Load(ctx)
}

// List returns the snapshot file, if any.
func (s *FileStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	info, err := s.stat()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return []SnapshotInfo{info}, nil
}

func (s *FileStore) stat() (SnapshotInfo, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	return SnapshotInfo{ID: s.path, Size: fi.Size(), CreatedAt: fi.ModTime()}, nil
}

// Paths returns the snapshot file path.
func (s *FileStore) Paths() []string {
	return []string{s.path}
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}
