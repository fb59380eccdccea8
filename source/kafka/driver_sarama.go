package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"userprofile/internal/config"
	"userprofile/internal/event"
	"userprofile/internal/logging"
)

func init() { Register("sarama", func() Adapter { return &SaramaDriver{} }) }

type SaramaDriver struct {
	cfg    Config
	mode   config.CommitMode
	topics event.TopicMap
	cl     sarama.Client
	group  sarama.ConsumerGroup
	bp     *Controller
	cp     *Manager[int64]

	// acking is held shared while a callback runs and exclusively by
	// Cleanup, so a session never ends under a running callback.
	acking  sync.RWMutex
	mu      sync.Mutex
	pending map[event.Checkpoint]func()
}

// setup prepares the in-memory state; it does not touch the network.
func (d *SaramaDriver) setup(c Config) {
	c = c.withDefaults()
	bpc := c.Kafka.BackPressure
	d.cfg, d.mode = c, c.Kafka.CommitMode
	d.topics = event.NewTopicMap(c.Topics)
	d.pending = make(map[event.Checkpoint]func())
	d.bp = NewController(bpc.Capacity, bpc.Capacity/10, bpc.CheckInt)
	d.cp = NewManager[int64](bpc.Capacity, c.Kafka.Checkpoint.CommitInt)
}

func (d *SaramaDriver) Configure(c Config) error {
	d.setup(c)
	sc, err := d.cfg.saramaConfig()
	if err != nil {
		return err
	}
	if d.cl, err = sarama.NewClient(d.cfg.Kafka.Brokers, sc); err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	if d.group, err = sarama.NewConsumerGroupFromClient(d.cfg.Kafka.GroupID, d.cl); err != nil {
		_ = d.cl.Close()
		return fmt.Errorf("kafka consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx ends, rejoining the group after every rebalance.
func (d *SaramaDriver) Run(ctx context.Context, emit EmitFunc) error {
	if d.group == nil {
		return errors.New("sarama-driver: not configured")
	}
	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("sarama-driver: consumer error", "err", err)
		}
	}()

	handler := &groupHandler{driver: d, emit: emit}
	topics := d.topics.Topics()
	for {
		if err := d.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *SaramaDriver) Close() error {
	var errs []error
	if d.group != nil {
		errs = append(errs, d.group.Close())
	}
	if d.cl != nil && !d.cl.Closed() {
		errs = append(errs, d.cl.Close())
	}
	if d.bp != nil {
		d.bp.Close()
	}
	return errors.Join(errs...)
}

// OnAck resolves an e2e record. Unknown checkpoints (already resolved or
// revoked by a rebalance) are ignored.
func (d *SaramaDriver) OnAck(cp event.Checkpoint) {
	d.acking.RLock()
	defer d.acking.RUnlock()

	d.mu.Lock()
	cb, ok := d.pending[cp]
	if ok {
		delete(d.pending, cp)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	cb()
	d.bp.Release(1)
	logging.L().Debug("kafka ack released", "topic", cp.Topic, "partition", cp.Partition, "offset", cp.Offset)
}

func (d *SaramaDriver) toEvent(msg *sarama.ConsumerMessage) event.Event {
	ev := event.Event{
		Type:      d.topics.TypeOf(msg.Topic),
		Key:       msg.Key,
		Payload:   msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Timestamp,
		Headers:   toHeaderMap(msg.Headers),
	}
	if id := ev.Headers[event.HeaderEventID]; id != "" {
		ev.ID = id
	} else {
		ev.ID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return ev
}

type groupHandler struct {
	driver *SaramaDriver
	emit   EmitFunc
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup commits what was marked and drops callbacks of revoked records;
// they will be redelivered to the next owner.
func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	d := h.driver
	d.acking.Lock()
	defer d.acking.Unlock()
	sess.Commit()

	d.mu.Lock()
	dropped := len(d.pending)
	d.pending = make(map[event.Checkpoint]func())
	d.mu.Unlock()

	d.cp.Reset()
	d.bp.Release(int64(dropped))
	if dropped > 0 {
		logging.L().Info("sarama-driver: rebalance, cleared pending callbacks", "count", dropped)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	d := h.driver
	ctx := sess.Context()
	for {
		if err := d.bp.Acquire(ctx); err != nil {
			return nil
		}

		var msg *sarama.ConsumerMessage
		select {
		case <-ctx.Done():
			d.bp.Release(1)
			return nil
		case m, ok := <-claim.Messages():
			if !ok {
				d.bp.Release(1)
				return nil
			}
			msg = m
		}

		if err := h.handle(sess, msg); err != nil {
			d.bp.Release(1)
			return err
		}
	}
}

func (h *groupHandler) handle(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	d := h.driver
	resolve, err := d.cp.Track(sess.Context(), msg.Topic, msg.Partition, msg.Offset)
	if err != nil {
		return err
	}
	mark := func() {
		highest, due := resolve()
		if highest != nil {
			sess.MarkOffset(msg.Topic, msg.Partition, *highest+1, "")
		}
		if due {
			sess.Commit()
		}
	}

	ev := d.toEvent(msg)
	cp := ev.Checkpoint()
	if d.mode == config.CommitE2E {
		// registered first: the ack may arrive before emit returns
		d.mu.Lock()
		d.pending[cp] = mark
		d.mu.Unlock()
	}

	if err := h.emit(ev); err != nil {
		if d.mode == config.CommitE2E {
			d.mu.Lock()
			delete(d.pending, cp)
			d.mu.Unlock()
		}
		return err
	}

	if d.mode == config.CommitAuto {
		mark()
		d.bp.Release(1)
	}
	return nil
}

func toHeaderMap(src []*sarama.RecordHeader) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for _, h := range src {
		if h == nil {
			continue
		}
		out[string(h.Key)] = string(h.Value)
	}
	return out
}
