package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"userprofile/internal/config"
	"userprofile/internal/domain"
	"userprofile/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default().Database
	cfg.URL = filepath.Join(t.TempDir(), "userprofile.db")
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func user(id, name string, at time.Time) domain.User {
	return domain.NewUser(id, name, name+"@example.com", at, at)
}

func TestStore_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	ada := user("u-1", "ada", t0)
	ada.Avatar = "ada.png"
	require.NoError(t, s.Insert(ctx, ada))
	require.NoError(t, s.Insert(ctx, user("u-2", "grace", t0.Add(time.Minute))))

	got, err := s.FindByID(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, ada, got)

	got, err = s.FindByUserName(ctx, "grace")
	require.NoError(t, err)
	require.Equal(t, "u-2", got.ID)

	got, err = s.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.Equal(t, "u-1", got.ID)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "u-1", all[0].ID)

	ada.UserName = "lovelace"
	ada.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, s.Update(ctx, ada))
	got, err = s.FindByID(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, "lovelace", got.UserName)
	require.Equal(t, t0, got.CreatedAt)

	require.NoError(t, s.Remove(ctx, "u-2"))
	_, err = s.FindByID(ctx, "u-2")
	require.True(t, errors.Is(err, domain.ErrUserNotFound), err)
}

func TestStore_Conflicts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.Insert(ctx, user("u-1", "ada", t0)))

	err := s.Insert(ctx, user("u-1", "other", t0))
	require.True(t, errors.Is(err, domain.ErrUserExists), err)

	dupName := user("u-9", "ada", t0)
	dupName.Email = "someone@example.com"
	err = s.Insert(ctx, dupName)
	require.True(t, errors.Is(err, domain.ErrUserExists), err)

	require.NoError(t, s.Insert(ctx, user("u-2", "grace", t0)))
	taken := user("u-2", "ada", t0)
	err = s.Update(ctx, taken)
	require.True(t, errors.Is(err, domain.ErrUserExists), err)

	err = s.Update(ctx, user("u-404", "nobody", t0))
	require.True(t, errors.Is(err, domain.ErrUserNotFound), err)
	err = s.Remove(ctx, "u-404")
	require.True(t, errors.Is(err, domain.ErrUserNotFound), err)

	err = s.Insert(ctx, domain.User{ID: "u-3"})
	require.True(t, errors.Is(err, domain.ErrInvalidUser), err)
}

func TestStore_ReopenKeepsDataAndMigrationsRunOnce(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Database
	cfg.URL = filepath.Join(t.TempDir(), "userprofile.db")

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, user("u-1", "ada", time.Now())))
	require.NoError(t, s.CreateTable(ctx))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.GetAll(ctx)
	require.ErrorIs(t, err, domain.ErrStoreClosed)

	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	var applied int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+migrationTable).Scan(&applied))
	require.Equal(t, 2, applied)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStore_ActivityAndAudit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	order := repository.Activity{Ref: "o-1", UserID: "u-1", Status: "paid", Detail: "12.50 EUR", OccurredAt: t0}
	require.NoError(t, s.RecordOrder(ctx, order))
	require.NoError(t, s.RecordOrder(ctx, order)) // replay
	require.NoError(t, s.RecordNotification(ctx, repository.Activity{Ref: "n-1", UserID: "u-1", Status: "email", OccurredAt: t0.Add(time.Second)}))
	require.NoError(t, s.RecordOrder(ctx, repository.Activity{Ref: "o-2", UserID: "u-2", Status: "new", OccurredAt: t0}))

	acts, err := s.Activity(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, repository.ActivityOrder, acts[0].Kind)
	require.Equal(t, repository.ActivityNotification, acts[1].Kind)
	require.Equal(t, t0, acts[0].OccurredAt)

	err = s.RecordOrder(ctx, repository.Activity{UserID: "u-1"})
	require.True(t, errors.Is(err, domain.ErrInvalidEvent), err)

	for _, id := range []string{"a-1", "a-2", "a-3", "a-2"} {
		require.NoError(t, s.AppendAudit(ctx, repository.AuditRecord{ID: id, Actor: "svc", Action: "user.created", Subject: "u-1", OccurredAt: t0}))
	}
	log, err := s.AuditLog(ctx, 2)
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, "a-3", log[0].ID)

	log, err = s.AuditLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, log, 3)
}

func TestRegistry_OpenSQLiteAndRejectPostgres(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Database
	cfg.URL = filepath.Join(t.TempDir(), "reg.db")

	st, err := repository.Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg.Type = "postgresql"
	_, err = repository.Open(ctx, cfg)
	require.True(t, errors.Is(err, domain.ErrUnsupportedConnection), err)

	cfg.Type = "mysql"
	_, err = repository.Open(ctx, cfg)
	require.True(t, errors.Is(err, domain.ErrUnsupportedConnection), err)
}
