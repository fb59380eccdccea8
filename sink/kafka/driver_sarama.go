// Package kafka publishes to Kafka through a sarama SyncProducer.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"userprofile/internal/config"
	"userprofile/internal/logging"
	"userprofile/internal/telemetry"
	"userprofile/sink"
)

// NewProducerFunc opens the underlying producer; tests swap in sarama/mocks.
type NewProducerFunc func(brokers []string, sc *sarama.Config) (sarama.SyncProducer, error)

type driver struct {
	newProducer NewProducerFunc

	mu sync.RWMutex
	p  sarama.SyncProducer
}

// New returns an unconfigured Kafka sink; a nil open uses sarama.NewSyncProducer.
func New(open NewProducerFunc) sink.Adapter {
	if open == nil {
		open = sarama.NewSyncProducer
	}
	return &driver{newProducer: open}
}

func (d *driver) Configure(cfg config.ServiceConfig) error {
	sc, err := ProducerConfig(cfg)
	if err != nil {
		return err
	}
	p, err := d.newProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	d.mu.Lock()
	d.p = p
	d.mu.Unlock()
	return nil
}

// ProducerConfig derives the sarama producer settings: idempotence and
// batching from performance, then kafka.producer overrides.
func ProducerConfig(cfg config.ServiceConfig) (*sarama.Config, error) {
	sc, err := cfg.Kafka.SaramaBase()
	if err != nil {
		return nil, err
	}
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	if cfg.Performance.ProducerBatchSize > 0 {
		sc.Producer.Flush.Messages = cfg.Performance.ProducerBatchSize
	}
	if cfg.Performance.EnableIdempotence {
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
		if sc.Producer.Retry.Max < 1 {
			sc.Producer.Retry.Max = 1
		}
	}
	for k, v := range cfg.Kafka.Producer {
		if err := applyProducerOverride(sc, k, v); err != nil {
			return nil, err
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}
	return sc, nil
}

func applyProducerOverride(sc *sarama.Config, key, value string) error {
	value = strings.TrimSpace(value)
	bad := func(err error) error { return fmt.Errorf("kafka.producer[%s]: %w", key, err) }
	switch key {
	case "acks":
		switch strings.ToLower(value) {
		case "all", "-1":
			sc.Producer.RequiredAcks = sarama.WaitForAll
		case "1":
			sc.Producer.RequiredAcks = sarama.WaitForLocal
		case "0":
			sc.Producer.RequiredAcks = sarama.NoResponse
		default:
			return bad(fmt.Errorf("unknown acks %q", value))
		}
	case "retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return bad(err)
		}
		sc.Producer.Retry.Max = n
	case "linger.ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return bad(err)
		}
		sc.Producer.Flush.Frequency = time.Duration(n) * time.Millisecond
	case "compression.type":
		var codec sarama.CompressionCodec
		if err := codec.UnmarshalText([]byte(strings.ToLower(value))); err != nil {
			return bad(err)
		}
		sc.Producer.Compression = codec
	case "client.id":
		sc.ClientID = value
	case "message.max.bytes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return bad(err)
		}
		sc.Producer.MaxMessageBytes = n
	case "enable.idempotence":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return bad(err)
		}
		sc.Producer.Idempotent = b
		if b {
			sc.Net.MaxOpenRequests = 1
		}
	default:
		return fmt.Errorf("kafka.producer: unsupported key %q", key)
	}
	return nil
}

func (d *driver) Publish(ctx context.Context, m sink.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	p := d.p
	d.mu.RUnlock()
	if p == nil {
		return errors.New("kafka-sink: publish before Configure")
	}

	pm := &sarama.ProducerMessage{Topic: m.Topic, Value: sarama.ByteEncoder(m.Value)}
	if len(m.Key) > 0 {
		pm.Key = sarama.ByteEncoder(m.Key)
	}
	for k, v := range m.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.SendMessage(pm)
	if err != nil {
		telemetry.MessagesPublished.WithLabelValues(m.Topic, "error").Inc()
		logging.L().Warn("kafka delivery failed", "topic", m.Topic, "err", err)
		return fmt.Errorf("kafka-sink: send to %s: %w", m.Topic, err)
	}
	telemetry.MessagesPublished.WithLabelValues(m.Topic, "ok").Inc()
	logging.L().Debug("kafka delivered", "topic", m.Topic, "partition", partition, "offset", offset)
	return nil
}

// Close is idempotent.
func (d *driver) Close() error {
	d.mu.Lock()
	p := d.p
	d.p = nil
	d.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}

func init() { sink.Register("kafka", func() sink.Adapter { return New(nil) }) }
