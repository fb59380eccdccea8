package transport

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"userprofile/internal/config"
	"userprofile/internal/domain"
	"userprofile/internal/repository"
	"userprofile/internal/repository/sqlite"
)

var t0 = time.Date(2025, 6, 26, 9, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default().Database
	cfg.URL = filepath.Join(t.TempDir(), "query.db")
	s, err := sqlite.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ada := domain.NewUser("u-1", "ada", "ada@example.com", t0, t0)
	ada.Avatar = "ada.png"
	require.NoError(t, s.Insert(ctx, ada))
	require.NoError(t, s.Insert(ctx, domain.NewUser("u-2", "grace", "grace@example.com", t0.Add(time.Minute), t0.Add(time.Minute))))
	require.NoError(t, s.RecordOrder(ctx, repository.Activity{Ref: "o-1", UserID: "u-1", Status: "paid", Detail: "9.99 EUR", OccurredAt: t0}))
	return s
}

func startServer(t *testing.T, q Queries) *QueryClient {
	t.Helper()
	srv, err := StartServer(0, q)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	c, err := Dial(fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestQuery_OverGRPC(t *testing.T) {
	c := startServer(t, seededStore(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := c.Healthy(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := c.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ada", u.UserName)
	assert.Equal(t, "ada.png", u.Avatar)
	assert.True(t, u.CreatedAt.Equal(t0))

	u, err = c.FindUserByName(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, "u-2", u.ID)

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u-1", users[0].ID)

	acts, err := c.GetActivity(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, repository.ActivityOrder, acts[0].Kind)
	assert.Equal(t, "9.99 EUR", acts[0].Detail)

	_, err = c.GetUser(ctx, "u-404")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = c.GetActivity(ctx, "u-404")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestQueryServer_StatusCodes(t *testing.T) {
	s := seededStore(t)
	q := NewQueryServer(s)

	_, err := q.GetUser(context.Background(), wrapperspb.String("nobody"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	require.NoError(t, s.Close())
	_, err = q.ListUsers(context.Background(), nil)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
