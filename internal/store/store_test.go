package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("newTestSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestFile(t *testing.T) *File {
	t.Helper()
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("newTestFile: %v", err)
	}
	return f
}

// exerciseBackend checks the contract every backend must satisfy.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	// Missing key.
	if _, err := b.Get(ctx, KeyActiveSession); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Set and get.
	if err := b.Set(ctx, KeyActiveSession, []byte(`{"current":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Get(ctx, KeyActiveSession)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"current":1}` {
		t.Errorf("expected stored value, got %q", got)
	}

	// Overwrite.
	if err := b.Set(ctx, KeyActiveSession, []byte(`{"current":2}`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _ = b.Get(ctx, KeyActiveSession)
	if string(got) != `{"current":2}` {
		t.Errorf("expected overwritten value, got %q", got)
	}

	// Keys are independent.
	if err := b.Set(ctx, KeyHistory, []byte(`[]`)); err != nil {
		t.Fatalf("Set history: %v", err)
	}

	// Delete.
	if err := b.Delete(ctx, KeyActiveSession); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get(ctx, KeyActiveSession); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := b.Delete(ctx, KeyActiveSession); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
	if got, err := b.Get(ctx, KeyHistory); err != nil || string(got) != `[]` {
		t.Errorf("history key affected by delete: %q, %v", got, err)
	}
}

func TestSQLiteBackend(t *testing.T) {
	exerciseBackend(t, newTestSQLite(t))
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestFileBackend(t *testing.T) {
	exerciseBackend(t, newTestFile(t))
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("QUIZRUNNER_TEST_REDIS")
	if addr == "" {
		t.Skip("QUIZRUNNER_TEST_REDIS not set")
	}
	r, err := NewRedis(context.Background(), addr, 0, "quizrunner-test:")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_ = r.Delete(ctx, KeyActiveSession)
		_ = r.Delete(ctx, KeyHistory)
		r.Close()
	})
	exerciseBackend(t, r)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	value := []byte("abc")
	_ = m.Set(ctx, "k", value)
	value[0] = 'x'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("memory backend aliased the caller's slice: %q", got)
	}
	got[1] = 'y'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("memory backend returned its internal slice: %q", again)
	}
}

func TestFileBackendLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if err := f.Set(ctx, KeyHistory, []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "quizHistory.json")); err != nil {
		t.Errorf("expected quizHistory.json on disk: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, got %d entries", len(entries))
	}

	if err := f.Set(ctx, "../escape", []byte("x")); err == nil {
		t.Error("expected invalid key error")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"memory", Options{Kind: "memory"}, false},
		{"sqlite default", Options{DBPath: ":memory:"}, false},
		{"file", Options{Kind: "file", DataDir: t.TempDir()}, false},
		{"file without dir", Options{Kind: "file"}, true},
		{"redis without addr", Options{Kind: "redis"}, true},
		{"unknown", Options{Kind: "etcd"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(ctx, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			b.Close()
		})
	}
}

func TestSQLiteOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "kv.db")
	if _, err := NewSQLite(path); err == nil {
		t.Fatal("expected error for a database in a missing directory")
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("expected no directory to be created, got %v", err)
	}
}
