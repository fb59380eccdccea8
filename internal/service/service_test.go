package service

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userprofile/internal/config"
	"userprofile/internal/domain"
	"userprofile/internal/event"
	"userprofile/sink/stdout"
	"userprofile/source/kafka"
)

type scriptedSource struct {
	events []event.Event
	closed bool
}

func (s *scriptedSource) Configure(kafka.Config) error { return nil }
func (s *scriptedSource) Close() error                 { s.closed = true; return nil }
func (s *scriptedSource) Run(ctx context.Context, emit kafka.EmitFunc) error {
	for _, ev := range s.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (w *syncBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *syncBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) config.ServiceConfig {
	cfg := config.Default()
	cfg.Service.GRPCPort = freePort(t)
	cfg.Service.MetricsPort = 0
	cfg.Database.URL = filepath.Join(t.TempDir(), "service.db")
	cfg.Kafka.Ack.BatchSize = 0
	return cfg
}

func TestService_ConsumesAndAudits(t *testing.T) {
	t0 := time.Date(2025, 6, 26, 9, 0, 0, 0, time.UTC)
	payload, err := event.EncodeUserEvent(event.UserEvent{
		ID:   "ev-1",
		Op:   event.OpCreated,
		User: domain.NewUser("u-1", "ada", "ada@example.com", t0, t0),
	}, event.ContentTypeJSON)
	require.NoError(t, err)

	src := &scriptedSource{events: []event.Event{{
		ID: "ev-1", Type: event.User, Topic: "user-events", Key: []byte("u-1"), Payload: payload,
		Headers: map[string]string{event.HeaderContentType: event.ContentTypeJSON},
	}}}
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	svc, err := Bootstrap(ctx, testConfig(t), WithSource(src), WithAuditSink(stdout.New(out)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := svc.Store().FindByID(context.Background(), "u-1")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "audit-events") && strings.Contains(out.String(), `"action":"user.created"`)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, src.closed)
	assert.NoError(t, svc.Stop(), "second stop returns the first result")
}

func TestBootstrap_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kafka.Brokers = nil
	_, err := Bootstrap(context.Background(), cfg, WithSource(&scriptedSource{}))
	require.ErrorContains(t, err, "kafka.brokers")
}

func TestBootstrap_ReleasesOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Type = "postgresql"
	src := &scriptedSource{}
	_, err := Bootstrap(context.Background(), cfg, WithSource(src))
	assert.ErrorIs(t, err, domain.ErrUnsupportedConnection)
}
