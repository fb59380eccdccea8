// Package repository declares the persistence contracts of the service and
// a registry of backends keyed by connection type.
package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"

	"userprofile/internal/config"
	"userprofile/internal/domain"
)

type ConnectionType string

const (
	SQLite     ConnectionType = "sqlite"
	PostgreSQL ConnectionType = "postgresql"
)

func ParseConnectionType(s string) (ConnectionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgresql", "postgres":
		return PostgreSQL, nil
	}
	return "", zerr.With(zerr.Wrap(domain.ErrUnsupportedConnection, "unknown connection type"), "type", s)
}

// UserRepository stores user profiles. Insert fails with
// domain.ErrUserExists on a taken id, user name or e-mail; lookups fail with
// domain.ErrUserNotFound.
type UserRepository interface {
	CreateTable(ctx context.Context) error
	Insert(ctx context.Context, u domain.User) error
	Update(ctx context.Context, u domain.User) error
	Remove(ctx context.Context, id string) error
	GetAll(ctx context.Context) ([]domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByUserName(ctx context.Context, userName string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	Close() error
}

// ActivityKind labels a row of a user's activity history.
type ActivityKind string

const (
	ActivityOrder        ActivityKind = "order"
	ActivityNotification ActivityKind = "notification"
)

// Activity is one order or notification attributed to a user.
type Activity struct {
	Kind       ActivityKind
	Ref        string // order or notification id
	UserID     string
	Status     string // order status or notification channel
	Detail     string
	OccurredAt time.Time
}

// AuditRecord is one entry of the append-only audit log.
type AuditRecord struct {
	ID         string
	Actor      string
	Action     string
	Subject    string
	Detail     string
	OccurredAt time.Time
}

// ActivityRepository keeps per-user activity and the audit log. Recording
// the same Ref or audit ID twice is a no-op.
type ActivityRepository interface {
	RecordOrder(ctx context.Context, a Activity) error
	RecordNotification(ctx context.Context, a Activity) error
	AppendAudit(ctx context.Context, r AuditRecord) error
	Activity(ctx context.Context, userID string) ([]Activity, error)
	AuditLog(ctx context.Context, limit int) ([]AuditRecord, error)
}

type Store interface {
	UserRepository
	ActivityRepository
}

/*──────── registry ───────*/

// Factory opens a Store for one connection type.
type Factory func(ctx context.Context, cfg config.Database) (Store, error)

var (
	mu       sync.RWMutex
	registry = map[ConnectionType]Factory{}
)

// Register is called from each backend's init().
func Register(t ConnectionType, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[t] = f
}

// Open selects the backend for cfg.Type.
func Open(ctx context.Context, cfg config.Database) (Store, error) {
	t, err := ParseConnectionType(cfg.Type)
	if err != nil {
		return nil, err
	}
	mu.RLock()
	f, ok := registry[t]
	mu.RUnlock()
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedConnection, "no driver compiled in"), "type", string(t))
	}
	s, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", t, err)
	}
	return s, nil
}
