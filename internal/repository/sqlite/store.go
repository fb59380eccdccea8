// Package sqlite is the SQLite-backed repository.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.trai.ch/zerr"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"userprofile/internal/config"
	"userprofile/internal/domain"
	"userprofile/internal/repository"
	"userprofile/internal/repository/sqlite/migrations"
)

// Store persists users, activity and the audit log in one SQLite file.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

func init() {
	repository.Register(repository.SQLite, func(ctx context.Context, cfg config.Database) (repository.Store, error) {
		return Open(ctx, cfg)
	})
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the database named by cfg.URL and applies
// the embedded migrations.
func Open(ctx context.Context, cfg config.Database) (*Store, error) {
	p := strings.TrimSpace(strings.TrimPrefix(cfg.URL, "sqlite://"))
	if p == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	memory := p == ":memory:"
	if !memory {
		p = filepath.Clean(p)
	}
	dsn := p + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	switch {
	case memory:
		// every connection would see its own empty database
		db.SetMaxOpenConns(1)
	case cfg.MaxConnections > 0:
		db.SetMaxOpenConns(cfg.MaxConnections)
	}

	if cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectionTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &Store{db: db}
	if err := s.CreateTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable applies any pending migrations. It is safe to call repeatedly.
func (s *Store) CreateTable(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := applyMigrations(ctx, s.db, migrations.FS); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close is idempotent.
func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil || s.closed.Load() {
		return domain.ErrStoreClosed
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func userExists(u domain.User) error {
	return zerr.With(zerr.Wrap(domain.ErrUserExists, "user id, name or email taken"), "user_id", u.ID)
}

func userNotFound(key, value string) error {
	return zerr.With(zerr.Wrap(domain.ErrUserNotFound, "lookup by "+key), key, value)
}

var _ repository.Store = (*Store)(nil)
