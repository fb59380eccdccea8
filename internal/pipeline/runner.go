// Package pipeline moves events from a source to the handler registry: it
// shards them over a fixed worker pool, retries transient failures and
// acknowledges each event back to the source once it is settled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"userprofile/internal/config"
	"userprofile/internal/domain"
	"userprofile/internal/event"
	"userprofile/internal/handler"
	"userprofile/internal/logging"
	"userprofile/internal/telemetry"
	"userprofile/source/kafka"
)

type Options struct {
	Workers      int
	RetryAttempt int           // extra attempts after the first failure
	RetryBackoff time.Duration // doubled after every attempt
	Ack          config.Ack
}

func OptionsFrom(cfg config.ServiceConfig) Options {
	return Options{
		Workers:      cfg.Performance.EventHandlerThreads,
		RetryAttempt: cfg.Performance.HandlerRetryAttempts,
		RetryBackoff: cfg.Performance.HandlerRetryBackoff,
		Ack:          cfg.Kafka.Ack,
	}
}

type Runner struct {
	source   kafka.Adapter
	handlers *handler.Registry
	opts     Options
	acks     *acker

	mu   sync.Mutex
	subs []func(event.Checkpoint)
}

// NewRunner wires src to reg. A source implementing kafka.AckAware is
// subscribed to acknowledgements.
func NewRunner(src kafka.Adapter, reg *handler.Registry, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	r := &Runner{source: src, handlers: reg, opts: opts}
	r.acks = newAcker(opts.Ack, r.publishAck)
	if aw, ok := src.(kafka.AckAware); ok {
		r.SubscribeAck(aw.OnAck)
	}
	return r
}

func (r *Runner) SubscribeAck(fn func(event.Checkpoint)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

func (r *Runner) publishAck(cp event.Checkpoint) {
	r.mu.Lock()
	handlers := append([]func(event.Checkpoint){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(cp)
	}
}

// Run consumes until ctx is cancelled or the source stops, then drains the
// workers and flushes pending acknowledgements.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil || r.handlers == nil {
		return errors.New("runner: source and handlers are required")
	}
	defer r.acks.Stop()

	g, gctx := errgroup.WithContext(ctx)
	shards := make([]chan event.Event, r.opts.Workers)
	for i := range shards {
		shards[i] = make(chan event.Event, 64)
		in := shards[i]
		g.Go(func() error {
			for ev := range in {
				r.process(gctx, ev)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, c := range shards {
				close(c)
			}
		}()
		err := r.source.Run(gctx, func(ev event.Event) error {
			select {
			case shards[shardOf(ev, len(shards))] <- ev:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("source: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// shardOf keeps events with the same key on one worker.
func shardOf(ev event.Event, n int) int {
	key := ev.Key
	if len(key) == 0 {
		key = []byte(ev.Topic + "/" + strconv.Itoa(int(ev.Partition)))
	}
	return int(xxhash.Sum64(key) % uint64(n))
}

func (r *Runner) process(ctx context.Context, ev event.Event) {
	typ := ev.Type.String()
	telemetry.EventsConsumed.WithLabelValues(typ).Inc()

	ctx, span := telemetry.Tracer().Start(ctx, "handle "+typ,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", ev.Topic),
			attribute.Int("messaging.kafka.partition", int(ev.Partition)),
			attribute.Int64("messaging.kafka.offset", ev.Offset),
			attribute.String("messaging.message.id", ev.ID),
		))
	defer span.End()

	start := time.Now()
	outcome, err := r.handle(ctx, ev)
	telemetry.HandleSeconds.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	telemetry.EventsHandled.WithLabelValues(typ, outcome).Inc()

	switch outcome {
	case outcomeCanceled:
		// left unacknowledged; redelivered after restart
		span.SetStatus(codes.Error, "canceled")
		return
	case outcomeSkipped:
		span.RecordError(err)
		span.SetStatus(codes.Error, "skipped")
		logging.L().Warn("event skipped", "type", typ, "topic", ev.Topic, "partition", ev.Partition, "offset", ev.Offset, "err", err)
	case outcomeFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, "retries exhausted")
		logging.Error(ctx, "handle "+typ, err)
	}
	r.acks.Add(ev.Checkpoint())
}

const (
	outcomeOK       = "ok"
	outcomeRetried  = "retried"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)

func (r *Runner) handle(ctx context.Context, ev event.Event) (string, error) {
	backoff := r.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := r.handlers.Dispatch(ctx, ev)
		switch {
		case err == nil && attempt == 0:
			return outcomeOK, nil
		case err == nil:
			return outcomeRetried, nil
		case ctx.Err() != nil:
			return outcomeCanceled, ctx.Err()
		case domain.IsPermanent(err):
			return outcomeSkipped, err
		case attempt >= r.opts.RetryAttempt:
			return outcomeFailed, err
		}

		logging.L().Debug("retrying event", "topic", ev.Topic, "offset", ev.Offset, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return outcomeCanceled, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
