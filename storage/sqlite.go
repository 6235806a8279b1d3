package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

const (
	sqliteUpsert = `INSERT INTO kv_store (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	sqliteSelect = `SELECT value FROM kv_store WHERE namespace = ? AND key = ?`
	sqliteDelete = `DELETE FROM kv_store WHERE namespace = ? AND key = ?`
	sqliteClear  = `DELETE FROM kv_store WHERE namespace = ?`
)

// SQLiteStore persists values in a SQLite database. Several stores may share one
// database file by using distinct namespaces.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	ownsDB    bool
}

// OpenSQLite opens (or creates) the database at path and returns a store scoped
// to namespace. Close releases the database.
func OpenSQLite(path, namespace string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), fileStoreDir); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	store, err := NewSQLiteStore(db, namespace)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewSQLiteStore wraps an existing database handle. The schema is created if
// missing; the caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB, namespace string) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("sqlite db is nil")
	}
	if namespace == "" {
		namespace = "default"
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, namespace: namespace}, nil
}

// Close closes the database if the store opened it.
func (s *SQLiteStore) Close() error {
	if s == nil || !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, sqliteSelect, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, sqliteErr("get", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, s.namespace, key, value, time.Now().Unix()); err != nil {
		return sqliteErr("set", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, sqliteDelete, s.namespace, key); err != nil {
		return sqliteErr("remove", err)
	}
	return nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteClear, s.namespace); err != nil {
		return sqliteErr("clear", err)
	}
	return nil
}

func (s *SQLiteStore) SetMany(ctx context.Context, values map[string]string) error {
	now := time.Now().Unix()
	return s.inTx(ctx, "set many", func(tx *sql.Tx) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, sqliteUpsert, s.namespace, k, v, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) RemoveMany(ctx context.Context, keys ...string) error {
	return s.inTx(ctx, "remove many", func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, sqliteDelete, s.namespace, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return sqliteErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return sqliteErr(op, err)
	}
	return nil
}

func sqliteErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: sqlite %s: %v", ErrClosed, op, err)
	}
	return fmt.Errorf("%w: sqlite %s: %v", ErrUnavailable, op, err)
}
