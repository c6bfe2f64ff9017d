// Package store provides the durable key/value backends that hold the
// active session, the attempt history and UI preferences.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Keys used by the application.
const (
	KeyActiveSession = "activeSession"
	KeyHistory       = "quizHistory"
	KeyTheme         = "mode"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Backend is a string-keyed store of opaque values.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Kind        string // sqlite, file, memory, redis
	DBPath      string
	DataDir     string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// Open creates the backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case "", "sqlite":
		return NewSQLite(opts.DBPath)
	case "file":
		return NewFile(opts.DataDir)
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}
