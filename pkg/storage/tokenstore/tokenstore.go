// Package tokenstore persists the admin bearer token across restarts.
package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store keeps at most one token. Load returns "" when nothing is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open builds the store for driver. The returned cleanup releases whatever the driver holds open.
func Open(driver, path string) (Store, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverFile:
		if path == "" {
			return nil, noop, fmt.Errorf("token store: file driver needs a path")
		}
		return NewFileStore(path), noop, nil
	case DriverSQLite:
		if path == "" {
			return nil, noop, fmt.Errorf("token store: sqlite driver needs a path")
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, noop, fmt.Errorf("token store: open sqlite: %w", err)
		}
		store, err := NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return store, db.Close, nil
	case DriverMemory, "":
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("token store: unknown driver %q", driver)
	}
}
