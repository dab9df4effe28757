package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "faiss_data.index")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, _, err := store.Load(ctx); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
	if list, err := store.List(ctx); err != nil || len(list) != 0 {
		t.Errorf("List on empty store = %v, %v", list, err)
	}

	if _, err := store.Save(ctx, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	info, err := store.Save(ctx, []byte("version two"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != int64(len("version two")) {
		t.Errorf("Size=%d", info.Size)
	}

	data, _, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "version two" {
		t.Errorf("Load = %q", data)
	}
	if got, _, err := store.Get(ctx, info.ID); err != nil || string(got) != "version two" {
		t.Errorf("Get(%s) = %q, %v", info.ID, got, err)
	}
	if _, _, err := store.Get(ctx, "older"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Get(older) = %v, want ErrSnapshotNotFound", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileStore_RequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	fs, err := Open(Options{SnapshotPath: filepath.Join(dir, "idx")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fs.(*FileStore); !ok {
		t.Errorf("default backend = %T, want *FileStore", fs)
	}

	sq, err := Open(Options{Backend: BackendSQLite, DatabasePath: filepath.Join(dir, "s.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer sq.Close()
	if _, ok := sq.(*SQLiteStore); !ok {
		t.Errorf("sqlite backend = %T", sq)
	}

	if _, err := Open(Options{Backend: "s3"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
