// Package config loads and validates the service configuration: Kafka
// connectivity, topic names, database, logging and performance knobs.
package config

import "time"

const SupportedSchema = "v1"

type CommitMode string

const (
	CommitAuto CommitMode = "auto" // mark once emitted to the handlers
	CommitE2E  CommitMode = "e2e"  // mark once the handler acked
)

type ServiceConfig struct {
	SchemaVersion string `koanf:"schema_version" yaml:"schema_version"`

	Service     Service     `koanf:"service" yaml:"service"`
	Kafka       Kafka       `koanf:"kafka" yaml:"kafka"`
	Topics      TopicConfig `koanf:"topics" yaml:"topics"`
	Database    Database    `koanf:"database" yaml:"database"`
	Performance Performance `koanf:"performance" yaml:"performance"`
	Tracing     Tracing     `koanf:"tracing" yaml:"tracing"`
}

type Service struct {
	Name        string `koanf:"name" yaml:"name"`
	Version     string `koanf:"version" yaml:"version"`
	GRPCPort    int    `koanf:"grpc_port" yaml:"grpc_port"`
	MetricsPort int    `koanf:"metrics_port" yaml:"metrics_port"` // 0 disables
	LogLevel    string `koanf:"log_level" yaml:"log_level"`
	LogJSON     bool   `koanf:"log_json" yaml:"log_json"`
	AuditSink   string `koanf:"audit_sink" yaml:"audit_sink"` // kafka|stdout|none
}

type BackPressure struct {
	Capacity int64         `koanf:"capacity" yaml:"capacity"`             // max unresolved messages
	CheckInt time.Duration `koanf:"check_interval" yaml:"check_interval"` // refill tick
}

type Checkpoint struct {
	CommitInt time.Duration `koanf:"commit_interval" yaml:"commit_interval"`
}

type Ack struct {
	BatchSize int           `koanf:"batch_size" yaml:"batch_size"`         // 0 = ack immediately
	FlushInt  time.Duration `koanf:"flush_interval" yaml:"flush_interval"` // 0 = no timer
}

type Kafka struct {
	Brokers   []string `koanf:"brokers" yaml:"brokers"`
	GroupID   string   `koanf:"group_id" yaml:"group_id"`
	ClientID  string   `koanf:"client_id" yaml:"client_id"`
	Version   string   `koanf:"version" yaml:"version"`
	StartFrom string   `koanf:"start_from" yaml:"start_from"` // oldest|newest
	TLSEn     bool     `koanf:"tls_enabled" yaml:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user" yaml:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass" yaml:"sasl_pass"`

	CommitMode   CommitMode   `koanf:"commit_mode" yaml:"commit_mode"`
	BackPressure BackPressure `koanf:"backpressure" yaml:"backpressure"`
	Checkpoint   Checkpoint   `koanf:"checkpoint" yaml:"checkpoint"`
	Ack          Ack          `koanf:"ack" yaml:"ack"`

	// librdkafka-style overrides, e.g. "acks" or "session.timeout.ms".
	Producer map[string]string `koanf:"producer" yaml:"producer,omitempty"`
	Consumer map[string]string `koanf:"consumer" yaml:"consumer,omitempty"`
}

// TopicConfig names the topic carrying each event family.
type TopicConfig struct {
	UserEvents         string `koanf:"user_events" yaml:"user_events"`
	OrderEvents        string `koanf:"order_events" yaml:"order_events"`
	NotificationEvents string `koanf:"notification_events" yaml:"notification_events"`
	AuditEvents        string `koanf:"audit_events" yaml:"audit_events"`
}

func (t TopicConfig) All() []string {
	return []string{t.UserEvents, t.OrderEvents, t.NotificationEvents, t.AuditEvents}
}

type Database struct {
	Type              string        `koanf:"type" yaml:"type"` // sqlite|postgresql
	URL               string        `koanf:"url" yaml:"url"`
	MaxConnections    int           `koanf:"max_connections" yaml:"max_connections"`
	ConnectionTimeout time.Duration `koanf:"connection_timeout" yaml:"connection_timeout"`
}

type Performance struct {
	ProducerBatchSize    int           `koanf:"producer_batch_size" yaml:"producer_batch_size"`
	ConsumerPollTimeout  time.Duration `koanf:"consumer_poll_timeout" yaml:"consumer_poll_timeout"`
	EventHandlerThreads  int           `koanf:"event_handler_threads" yaml:"event_handler_threads"`
	EnableIdempotence    bool          `koanf:"enable_idempotence" yaml:"enable_idempotence"`
	HandlerRetryAttempts int           `koanf:"handler_retry_attempts" yaml:"handler_retry_attempts"`
	HandlerRetryBackoff  time.Duration `koanf:"handler_retry_backoff" yaml:"handler_retry_backoff"`
}

type Tracing struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Endpoint string `koanf:"endpoint" yaml:"endpoint"`
}

// Default returns a configuration usable against a local single broker.
func Default() ServiceConfig {
	return ServiceConfig{
		SchemaVersion: SupportedSchema,
		Service: Service{
			Name:        "userprofile-service",
			Version:     "0.1.0",
			GRPCPort:    7070,
			MetricsPort: 9100,
			LogLevel:    "info",
			AuditSink:   "kafka",
		},
		Kafka: Kafka{
			Brokers:    []string{"localhost:9092"},
			GroupID:    "userprofile-service",
			ClientID:   "userprofile-service",
			Version:    "2.8.0",
			StartFrom:  "newest",
			CommitMode: CommitE2E,
			BackPressure: BackPressure{
				Capacity: 30_000,
				CheckInt: 100 * time.Millisecond,
			},
			Checkpoint: Checkpoint{CommitInt: 5 * time.Second},
			Ack:        Ack{BatchSize: 64, FlushInt: 250 * time.Millisecond},
		},
		Topics: TopicConfig{
			UserEvents:         "user-events",
			OrderEvents:        "order-events",
			NotificationEvents: "notification-events",
			AuditEvents:        "audit-events",
		},
		Database: Database{
			Type:              "sqlite",
			URL:               "userprofile.db",
			MaxConnections:    4,
			ConnectionTimeout: 5 * time.Second,
		},
		Performance: Performance{
			ProducerBatchSize:    100,
			ConsumerPollTimeout:  100 * time.Millisecond,
			EventHandlerThreads:  4,
			EnableIdempotence:    true,
			HandlerRetryAttempts: 3,
			HandlerRetryBackoff:  200 * time.Millisecond,
		},
	}
}
