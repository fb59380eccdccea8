package kafka

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"userprofile/internal/config"
)

// Config is what a driver needs to join the group and consume.
type Config struct {
	Kafka       config.Kafka
	Topics      config.TopicConfig
	PollTimeout time.Duration
}

// FromService picks the consumer settings out of the service configuration.
func FromService(c config.ServiceConfig) Config {
	return Config{Kafka: c.Kafka, Topics: c.Topics, PollTimeout: c.Performance.ConsumerPollTimeout}
}

func (c Config) withDefaults() Config {
	if c.Kafka.CommitMode != config.CommitAuto && c.Kafka.CommitMode != config.CommitE2E {
		c.Kafka.CommitMode = config.CommitAuto
	}
	if c.Kafka.BackPressure.Capacity <= 0 {
		c.Kafka.BackPressure.Capacity = 30_000
	}
	if c.Kafka.BackPressure.CheckInt <= 0 {
		c.Kafka.BackPressure.CheckInt = 100 * time.Millisecond
	}
	if c.Kafka.Checkpoint.CommitInt <= 0 {
		c.Kafka.Checkpoint.CommitInt = 5 * time.Second
	}
	return c
}

// saramaConfig builds the consumer-group client configuration, applying
// kafka.consumer overrides last.
func (c Config) saramaConfig() (*sarama.Config, error) {
	sc, err := c.Kafka.SaramaBase()
	if err != nil {
		return nil, err
	}
	sc.Consumer.Return.Errors = true
	// offsets are marked by the tracker and committed on its cadence
	sc.Consumer.Offsets.AutoCommit.Enable = false
	switch c.Kafka.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	if c.PollTimeout > 0 {
		sc.Consumer.MaxWaitTime = c.PollTimeout
	}
	for k, v := range c.Kafka.Consumer {
		if err := applyConsumerOverride(sc, k, v); err != nil {
			return nil, err
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("kafka consumer config: %w", err)
	}
	return sc, nil
}

func applyConsumerOverride(sc *sarama.Config, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "auto.offset.reset":
		switch strings.ToLower(value) {
		case "earliest", "smallest", "beginning":
			sc.Consumer.Offsets.Initial = sarama.OffsetOldest
		case "latest", "largest", "end":
			sc.Consumer.Offsets.Initial = sarama.OffsetNewest
		default:
			return fmt.Errorf("kafka.consumer[%s]: unknown reset policy %q", key, value)
		}
	case "session.timeout.ms":
		return setMillis(&sc.Consumer.Group.Session.Timeout, key, value)
	case "heartbeat.interval.ms":
		return setMillis(&sc.Consumer.Group.Heartbeat.Interval, key, value)
	case "fetch.max.wait.ms":
		return setMillis(&sc.Consumer.MaxWaitTime, key, value)
	case "max.poll.interval.ms":
		return setMillis(&sc.Consumer.Group.Rebalance.Timeout, key, value)
	case "fetch.min.bytes":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("kafka.consumer[%s]: %w", key, err)
		}
		sc.Consumer.Fetch.Min = int32(n)
	case "client.id":
		sc.ClientID = value
	default:
		return fmt.Errorf("kafka.consumer: unsupported key %q", key)
	}
	return nil
}

func setMillis(dst *time.Duration, key, value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("kafka.consumer[%s]: want milliseconds, got %q", key, value)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}
