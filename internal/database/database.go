package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/livestockweight/internal/cache"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

const queryTimeout = 5 * time.Second

// SQLiteDB is a durable cache.Store backed by a single SQLite table
type SQLiteDB struct {
	db       *sql.DB
	capacity int64 // bytes of keys+values, 0 means unbounded
}

var _ cache.Store = (*SQLiteDB)(nil)

// NewSQLiteDB opens (or creates) the cache database at dbPath
func NewSQLiteDB(dbPath string, capacity int64) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// WAL lets readers proceed while a cache write is in progress
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SQLiteDB{db: db, capacity: capacity}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}
	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// Get returns the value stored under key
func (s *SQLiteDB) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts value under key, rejecting the write with cache.ErrQuotaExceeded
// when it would grow the table beyond capacity.
func (s *SQLiteDB) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if s.capacity > 0 {
		var used int64
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0)
			FROM cache_entries WHERE key <> ?
		`, key).Scan(&used)
		if err != nil {
			return err
		}
		if used+int64(len(key)+len(value)) > s.capacity {
			return cache.ErrQuotaExceeded
		}
	}

	query := `
		INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

// Remove deletes key; removing a missing key is not an error
func (s *SQLiteDB) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// RemovePrefix deletes every key starting with prefix
func (s *SQLiteDB) RemovePrefix(prefix string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	// substr avoids LIKE, whose wildcards collide with "_" in namespaces
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE substr(key, 1, length(?1)) = ?1`, prefix)
	return err
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
