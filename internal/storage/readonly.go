package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ReadAll returns the stored records without opening the store for writing.
// Nothing on disk is created, migrated or moved aside; a file that does not
// parse is reported as ErrMalformed.
func ReadAll(ctx context.Context, cfg Config) ([]Record, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	path := strings.TrimSpace(cfg.Path)

	switch driver {
	case "", "file", "json":
		if path == "" {
			path = DefaultPath
		}
		return readFile(path)
	case "sqlite", "sqlite3":
		if path == "" {
			return nil, errors.New("storage.path is required for sqlite driver")
		}
		return readSQLite(ctx, path)
	case "memory", "mem":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

func readFile(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	recs, err := decodeRecords(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return recs, nil
}

func readSQLite(ctx context.Context, path string) ([]Record, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	st := &sqliteStore{db: db}
	defer st.Close()
	return st.List(ctx)
}
