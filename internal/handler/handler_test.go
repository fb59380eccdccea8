package handler

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"userprofile/internal/config"
	"userprofile/internal/domain"
	"userprofile/internal/event"
	"userprofile/internal/repository"
	"userprofile/internal/repository/sqlite"
	"userprofile/sink"
	"userprofile/sink/mocks"
)

var t0 = time.Date(2025, 6, 26, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) repository.Store {
	t.Helper()
	cfg := config.Default().Database
	cfg.URL = filepath.Join(t.TempDir(), "handler.db")
	s, err := sqlite.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func userEvent(t *testing.T, op event.Op, u domain.User) event.Event {
	t.Helper()
	raw, err := event.EncodeUserEvent(event.UserEvent{ID: "ev-" + string(op), Op: op, User: u, OccurredAt: t0}, event.ContentTypeProtobuf)
	require.NoError(t, err)
	return event.Event{
		ID:      "ev-" + string(op),
		Type:    event.User,
		Topic:   "user-events",
		Key:     []byte(u.ID),
		Payload: raw,
		Headers: map[string]string{event.HeaderContentType: event.ContentTypeProtobuf},
	}
}

func jsonEvent(t *testing.T, typ event.Type, v any) event.Event {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return event.Event{ID: "rec-1", Type: typ, Payload: raw, Timestamp: t0}
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	var got event.Type
	r.Register(event.Order, Func(func(_ context.Context, ev event.Event) error {
		got = ev.Type
		return nil
	}))

	require.NoError(t, r.Dispatch(context.Background(), event.Event{Type: event.Order}))
	assert.Equal(t, event.Order, got)

	err := r.Dispatch(context.Background(), event.Event{Type: event.Audit})
	assert.ErrorIs(t, err, domain.ErrHandlerNotFound)
	assert.True(t, domain.IsPermanent(err))

	err = r.Dispatch(context.Background(), event.Event{Topic: "stray"})
	assert.ErrorIs(t, err, domain.ErrUnknownEventType)
}

func TestUserEventHandler_LifecyclePublishesAudit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	store := openStore(t)
	pub := mocks.NewMockPublisher(ctrl)

	var actions []string
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m sink.Message) error {
		assert.Equal(t, "audit-events", m.Topic)
		assert.Equal(t, event.ContentTypeJSON, m.Headers[event.HeaderContentType])
		var ae event.AuditEvent
		require.NoError(t, json.Unmarshal(m.Value, &ae))
		assert.Equal(t, "u-1", ae.Subject)
		assert.Equal(t, ae.ID, m.Headers[event.HeaderEventID])
		actions = append(actions, ae.Action)
		return nil
	}).Times(3)

	h := NewUserEventHandler(store, pub, "audit-events")
	ada := domain.NewUser("u-1", "ada", "ada@example.com", t0, t0)

	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpCreated, ada)))

	renamed := ada
	renamed.UserName = "ada.l"
	renamed.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpUpdated, renamed)))

	got, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ada.l", got.UserName)

	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpDeleted, domain.User{ID: "u-1"})))
	_, err = store.FindByID(ctx, "u-1")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	assert.Equal(t, []string{"user.created", "user.updated", "user.deleted"}, actions)
}

func TestUserEventHandler_ReplaysAndMissingUsers(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	h := NewUserEventHandler(store, nil, "")

	ada := domain.NewUser("u-1", "ada", "ada@example.com", t0, t0.Add(time.Hour))
	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpCreated, ada)))

	// older replay of the create is ignored
	stale := ada
	stale.UserName = "stale"
	stale.UpdatedAt = t0
	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpCreated, stale)))
	got, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ada", got.UserName)

	// older update is ignored too
	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpUpdated, stale)))
	got, err = store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ada", got.UserName)

	// update of an unknown user inserts it
	grace := domain.NewUser("u-2", "grace", "grace@example.com", t0, t0)
	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpUpdated, grace)))
	_, err = store.FindByID(ctx, "u-2")
	require.NoError(t, err)

	// deleting an unknown user is a no-op
	require.NoError(t, h.Handle(ctx, userEvent(t, event.OpDeleted, domain.User{ID: "u-404"})))

	// e-mail taken by another id is permanent
	thief := domain.NewUser("u-3", "thief", "ada@example.com", t0, t0)
	err = h.Handle(ctx, userEvent(t, event.OpCreated, thief))
	assert.ErrorIs(t, err, domain.ErrUserExists)
	assert.True(t, domain.IsPermanent(err))
}

func TestUserEventHandler_AuditFailureIsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	h := NewUserEventHandler(openStore(t), pub, "audit-events")
	err := h.Handle(context.Background(), userEvent(t, event.OpCreated, domain.NewUser("u-1", "ada", "ada@example.com", t0, t0)))
	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err))
}

func TestUserEventHandler_RetryAfterAuditFailurePublishesAudit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	pub := mocks.NewMockPublisher(ctrl)
	var actions []string
	record := func(_ context.Context, m sink.Message) error {
		var ae event.AuditEvent
		require.NoError(t, json.Unmarshal(m.Value, &ae))
		actions = append(actions, ae.Action)
		return nil
	}
	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")),
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(record),
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")),
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(record),
	)

	h := NewUserEventHandler(openStore(t), pub, "audit-events")
	created := userEvent(t, event.OpCreated, domain.NewUser("u-1", "ada", "ada@example.com", t0, t0))

	require.Error(t, h.Handle(ctx, created))
	require.NoError(t, h.Handle(ctx, created))
	// once audited, a redelivery is a plain replay
	require.NoError(t, h.Handle(ctx, created))

	deleted := userEvent(t, event.OpDeleted, domain.User{ID: "u-1"})
	require.Error(t, h.Handle(ctx, deleted))
	require.NoError(t, h.Handle(ctx, deleted))

	assert.Equal(t, []string{"user.created", "user.deleted"}, actions)
}

func TestUserEventHandler_BadPayload(t *testing.T) {
	h := NewUserEventHandler(openStore(t), nil, "")
	err := h.Handle(context.Background(), event.Event{Type: event.User, Payload: []byte("{not json")})
	assert.ErrorIs(t, err, domain.ErrDecodeFailed)
}

func TestActivityHandlers(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Insert(ctx, domain.NewUser("u-1", "ada", "ada@example.com", t0, t0)))

	users := NewUserEventHandler(store, nil, "")
	r := NewRegistryFor(store, users)

	order := event.OrderEvent{OrderID: "o-1", UserID: "u-1", Status: "paid", Amount: 12.5, Currency: "EUR"}
	require.NoError(t, r.Dispatch(ctx, jsonEvent(t, event.Order, order)))

	note := event.NotificationEvent{NotificationID: "n-1", UserID: "u-1", Channel: "email", Message: "welcome", OccurredAt: t0.Add(time.Minute)}
	require.NoError(t, r.Dispatch(ctx, jsonEvent(t, event.Notification, note)))

	acts, err := store.Activity(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, repository.ActivityOrder, acts[0].Kind)
	assert.Equal(t, "12.50 EUR", acts[0].Detail)
	assert.True(t, acts[0].OccurredAt.Equal(t0), "falls back to record timestamp")
	assert.Equal(t, "email", acts[1].Status)

	orphan := event.OrderEvent{OrderID: "o-2", UserID: "u-404", Status: "paid"}
	err = r.Dispatch(ctx, jsonEvent(t, event.Order, orphan))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	audit := event.AuditEvent{Actor: "admin", Action: "user.locked", Subject: "u-1"}
	require.NoError(t, r.Dispatch(ctx, jsonEvent(t, event.Audit, audit)))
	log, err := store.AuditLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "rec-1", log[0].ID)
}
