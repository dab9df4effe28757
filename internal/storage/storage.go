// Package storage persists opaque index snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSnapshotNotFound is returned by Load when nothing has been saved yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotStore keeps the durable snapshot artifact. Save replaces the latest
// snapshot atomically: a crash mid-save leaves the previous snapshot readable.
type SnapshotStore interface {
	Save(ctx context.Context, data []byte) (SnapshotInfo, error)
	// Load returns the latest snapshot or ErrSnapshotNotFound.
	Load(ctx context.Context) ([]byte, SnapshotInfo, error)
	// Get returns a retained snapshot by id or ErrSnapshotNotFound.
	Get(ctx context.Context, id string) ([]byte, SnapshotInfo, error)
	// List returns stored snapshots, newest first.
	List(ctx context.Context) ([]SnapshotInfo, error)
	// Paths returns the files backing the store, for disk usage reporting.
	Paths() []string
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options selects and configures a snapshot backend.
type Options struct {
	Backend      string
	SnapshotPath string
	DatabasePath string
	// History bounds the rows kept by the sqlite backend.
	History int
}

// Open creates the snapshot store named by opts.Backend. An empty backend selects the file store.
func Open(opts Options) (SnapshotStore, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.SnapshotPath)
	case BackendSQLite:
		return NewSQLiteStore(opts.DatabasePath, opts.History)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (supported: file, sqlite)", opts.Backend)
	}
}
