package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"userprofile/internal/logging"
)

// Validate reports every invalid setting, joined.
func (c ServiceConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.SchemaVersion != "" && c.SchemaVersion != SupportedSchema {
		add("schema_version %q not supported", c.SchemaVersion)
	}

	// service
	if strings.TrimSpace(c.Service.Name) == "" {
		add("service.name must not be empty")
	}
	if strings.TrimSpace(c.Service.Version) == "" {
		add("service.version must not be empty")
	}
	if !validPort(c.Service.GRPCPort) {
		add("service.grpc_port %d out of range 1..65535", c.Service.GRPCPort)
	}
	if c.Service.MetricsPort != 0 && !validPort(c.Service.MetricsPort) {
		add("service.metrics_port %d out of range 1..65535", c.Service.MetricsPort)
	}
	if c.Service.MetricsPort != 0 && c.Service.MetricsPort == c.Service.GRPCPort {
		add("service.metrics_port collides with grpc_port %d", c.Service.GRPCPort)
	}
	if _, err := logging.ParseLevel(c.Service.LogLevel); err != nil {
		add("service.log_level: %v", err)
	}
	switch c.Service.AuditSink {
	case "kafka", "stdout", "none":
	default:
		add("service.audit_sink %q (want kafka|stdout|none)", c.Service.AuditSink)
	}

	// kafka
	if len(c.Kafka.Brokers) == 0 {
		add("kafka.brokers must list at least one broker")
	}
	for _, b := range c.Kafka.Brokers {
		if strings.TrimSpace(b) == "" {
			add("kafka.brokers contains an empty address")
			break
		}
	}
	if strings.TrimSpace(c.Kafka.GroupID) == "" {
		add("kafka.group_id must not be empty")
	}
	if c.Kafka.Version != "" {
		if _, err := sarama.ParseKafkaVersion(c.Kafka.Version); err != nil {
			add("kafka.version: %v", err)
		}
	}
	switch c.Kafka.StartFrom {
	case "oldest", "newest":
	default:
		add("kafka.start_from %q (want oldest|newest)", c.Kafka.StartFrom)
	}
	switch c.Kafka.CommitMode {
	case CommitAuto, CommitE2E:
	default:
		add("kafka.commit_mode %q (want auto|e2e)", c.Kafka.CommitMode)
	}
	// Without a flush timer a batch larger than the per-partition cap never fills.
	if a := c.Kafka.Ack; a.FlushInt == 0 && a.BatchSize > 0 && int64(a.BatchSize) > c.Kafka.BackPressure.Capacity {
		add("kafka.ack.batch_size %d exceeds kafka.backpressure.capacity %d with no flush_interval", a.BatchSize, c.Kafka.BackPressure.Capacity)
	}
	if c.Kafka.BackPressure.Capacity < 0 {
		add("kafka.backpressure.capacity must be >= 0")
	}
	if c.Kafka.Ack.BatchSize < 0 || c.Kafka.Ack.FlushInt < 0 {
		add("kafka.ack batch_size and flush_interval must be >= 0")
	}
	if (c.Kafka.SASLUser == "") != (c.Kafka.SASLPass == "") {
		add("kafka.sasl_user and kafka.sasl_pass must be set together")
	}
	errs = append(errs, validOverrides("kafka.producer", c.Kafka.Producer)...)
	errs = append(errs, validOverrides("kafka.consumer", c.Kafka.Consumer)...)

	if err := c.Topics.Validate(); err != nil {
		errs = append(errs, err)
	}

	// database
	switch c.Database.Type {
	case "sqlite", "postgresql":
	default:
		add("database.type %q (want sqlite|postgresql)", c.Database.Type)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		add("database.url must not be empty")
	}
	if c.Database.MaxConnections < 1 {
		add("database.max_connections must be >= 1")
	}
	if c.Database.ConnectionTimeout < 0 {
		add("database.connection_timeout must be >= 0")
	}

	// performance
	p := c.Performance
	if p.ProducerBatchSize < 1 {
		add("performance.producer_batch_size must be >= 1")
	}
	if p.ConsumerPollTimeout <= 0 {
		add("performance.consumer_poll_timeout must be > 0")
	}
	if p.EventHandlerThreads < 1 {
		add("performance.event_handler_threads must be >= 1")
	}
	if p.HandlerRetryAttempts < 0 || p.HandlerRetryBackoff < 0 {
		add("performance.handler_retry_attempts and handler_retry_backoff must be >= 0")
	}

	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.Endpoint) == "" {
		add("tracing.endpoint required when tracing is enabled")
	}
	return errors.Join(errs...)
}

// Validate checks every topic is named and no two event families share one.
func (t TopicConfig) Validate() error {
	var errs []error
	names := []string{"user_events", "order_events", "notification_events", "audit_events"}
	seen := make(map[string]string, 4)
	for i, topic := range t.All() {
		if strings.TrimSpace(topic) == "" {
			errs = append(errs, fmt.Errorf("topics.%s must not be empty", names[i]))
			continue
		}
		if prev, ok := seen[topic]; ok {
			errs = append(errs, fmt.Errorf("topics.%s reuses %q of topics.%s", names[i], topic, prev))
			continue
		}
		seen[topic] = names[i]
	}
	return errors.Join(errs...)
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func validOverrides(section string, m map[string]string) []error {
	var errs []error
	for k, v := range m {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Errorf("%s: empty key", section))
			continue
		}
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s[%s]: empty value", section, k))
		}
	}
	return errs
}
