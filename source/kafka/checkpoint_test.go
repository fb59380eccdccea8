package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"userprofile/internal/config"
)

func TestUncapped_HighestIsContiguous(t *testing.T) {
	u := NewUncapped[int64]()
	r1 := u.Track(1, 1)
	r2 := u.Track(2, 1)
	r3 := u.Track(3, 1)

	if got := r3(); got != nil {
		t.Fatalf("3 resolved before 1 and 2: want nil, got %d", *got)
	}
	if got := r1(); got == nil || *got != 1 {
		t.Fatalf("want highest 1, got %v", got)
	}
	if got := r2(); got == nil || *got != 3 {
		t.Fatalf("want highest 3 once the gap closes, got %v", got)
	}
	if u.Pending() != 0 {
		t.Fatalf("want 0 pending, got %d", u.Pending())
	}
}

func TestCapped_TrackBlocksAtCap(t *testing.T) {
	c := NewCapped[int64](2)
	ctx := context.Background()
	r1, _ := c.Track(ctx, 1, 1)
	if _, err := c.Track(ctx, 2, 1); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = c.Track(ctx, 3, 1)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Track must block while pending is at cap")
	case <-time.After(50 * time.Millisecond):
	}
	r1()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Track did not wake after resolve")
	}
}

func TestCapped_TrackHonoursContext(t *testing.T) {
	c := NewCapped[int64](1)
	_, _ = c.Track(context.Background(), 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Track(ctx, 2, 1); !errors.Is(err, errTrackCanceled) {
		t.Fatalf("want errTrackCanceled, got %v", err)
	}
}

func TestManager_PartitionsAreIndependent(t *testing.T) {
	m := NewManager[int64](10, time.Hour)
	ctx := context.Background()
	a0, _ := m.Track(ctx, "t", 0, 100)
	b0, _ := m.Track(ctx, "t", 1, 7)

	if h, _ := b0(); h == nil || *h != 7 {
		t.Fatalf("partition 1 must not wait for partition 0, got %v", h)
	}
	if m.Pending() != 1 {
		t.Fatalf("want 1 pending, got %d", m.Pending())
	}
	h, due := a0()
	if h == nil || *h != 100 {
		t.Fatalf("want 100, got %v", h)
	}
	if due {
		t.Fatal("commit interval of an hour already elapsed twice")
	}
	m.Reset()
	if m.Pending() != 0 {
		t.Fatal("reset must forget partitions")
	}
}

func TestController_AcquireRelease(t *testing.T) {
	c := NewController(1, 0, 0)
	defer c.Close()

	if err := c.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.TryAcquire(1) {
		t.Fatal("bucket should be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Release(1)
	}()
	if err := c.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Release(5)
	if c.Available() != 1 {
		t.Fatalf("release must cap at capacity, got %d", c.Available())
	}
}

func TestController_RefillTopsUp(t *testing.T) {
	c := NewController(4, 2, 5*time.Millisecond)
	defer c.Close()
	c.TryAcquire(4)

	deadline := time.Now().Add(time.Second)
	for c.Available() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("refill did not restore tokens: %d", c.Available())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSaramaConfig_Overrides(t *testing.T) {
	cfg := config.Default()
	cfg.Kafka.Consumer = map[string]string{
		"auto.offset.reset":     "earliest",
		"session.timeout.ms":    "30000",
		"heartbeat.interval.ms": "5000",
		"fetch.min.bytes":       "1024",
	}
	sc, err := FromService(cfg).saramaConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Fatal("auto.offset.reset not applied")
	}
	if sc.Consumer.Group.Session.Timeout != 30*time.Second || sc.Consumer.Fetch.Min != 1024 {
		t.Fatal("numeric overrides not applied")
	}
	if sc.Consumer.MaxWaitTime != cfg.Performance.ConsumerPollTimeout {
		t.Fatal("poll timeout not applied")
	}
	if !sc.Version.IsAtLeast(sarama.V2_8_0_0) {
		t.Fatalf("version not applied: %s", sc.Version)
	}

	cfg.Kafka.Consumer = map[string]string{"isolation.level": "read_committed"}
	if _, err := FromService(cfg).saramaConfig(); err == nil {
		t.Fatal("unknown override must be rejected")
	}
}

func TestNewAdapter(t *testing.T) {
	a, err := NewAdapter("sarama")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(AckAware); !ok {
		t.Fatal("sarama driver must be ack aware")
	}
	if _, err := NewAdapter("confluent"); err == nil {
		t.Fatal("unknown driver must fail")
	}
}
