package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const defaultHistory = 5

// SQLiteStore keeps a bounded history of snapshots as blobs in a SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	history int
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. history <= 0 keeps the default of 5.
func NewSQLiteStore(dbPath string, history int) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if history <= 0 {
		history = defaultHistory
	}
	return &SQLiteStore{db: db, path: dbPath, history: history}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Save inserts data as the newest snapshot and prunes rows beyond the history limit,
// in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, data []byte) (SnapshotInfo, error) {
	info := SnapshotInfo{
		ID:        uuid.NewString(),
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, size, data, created_at) VALUES (?, ?, ?, ?)`,
		info.ID, info.Size, data, info.CreatedAt,
	); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE seq NOT IN (SELECT seq FROM snapshots ORDER BY seq DESC LIMIT ?)`,
		s.history,
	); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return info, nil
}

// Load returns the newest snapshot.
func (s *SQLiteStore) Load(ctx context.Context) ([]byte, SnapshotInfo, error) {
	return s.load(ctx, `SELECT id, size, data, created_at FROM snapshots ORDER BY seq DESC LIMIT 1`)
}

// Get returns the snapshot with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, SnapshotInfo, error) {
	return s.load(ctx, `SELECT id, size, data, created_at FROM snapshots WHERE id = ?`, id)
}

func (s *SQLiteStore) load(ctx context.Context, query string, args ...any) ([]byte, SnapshotInfo, error) {
	var info SnapshotInfo
	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&info.ID, &info.Size, &data, &info.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, SnapshotInfo{}, fmt.Errorf("%w in %s", ErrSnapshotNotFound, s.path)
	}
	if err != nil {
		return nil, SnapshotInfo{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, info, nil
}

// List returns the retained snapshots, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, size, created_at FROM snapshots ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Size, &info.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Paths returns the database file and its WAL companions.
func (s *SQLiteStore) Paths() []string {
	return []string{s.path, s.path + "-wal", s.path + "-shm"}
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
