// Package service assembles the user profile service: storage, handlers,
// Kafka consumption, the audit publisher, the gRPC query surface, metrics
// and tracing.
package service

import (
	"context"
	"fmt"

	"userprofile/internal/config"
	"userprofile/internal/event"
	"userprofile/internal/handler"
	"userprofile/internal/logging"
	"userprofile/internal/pipeline"
	"userprofile/internal/repository"
	"userprofile/internal/telemetry"
	"userprofile/internal/transport"
	"userprofile/sink"
	"userprofile/source/kafka"

	// backends selected by configuration
	_ "userprofile/internal/repository/sqlite"
	_ "userprofile/sink/kafka"
	_ "userprofile/sink/stdout"
)

// DefaultSourceDriver is the consumer used unless WithSource overrides it.
const DefaultSourceDriver = "sarama"

type Option func(*options)

type options struct {
	source kafka.Adapter
	audit  sink.Adapter
}

// WithSource replaces the configured Kafka consumer.
func WithSource(a kafka.Adapter) Option { return func(o *options) { o.source = a } }

// WithAuditSink replaces the publisher selected by service.audit_sink.
func WithAuditSink(a sink.Adapter) Option { return func(o *options) { o.audit = a } }

// Bootstrap validates cfg and builds every component. Nothing consumes or
// serves until Run. On error the components built so far are released.
func Bootstrap(ctx context.Context, cfg config.ServiceConfig, opts ...Option) (_ *Service, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{cfg: cfg}
	defer func() {
		if err != nil {
			_ = s.Stop()
		}
	}()

	// 1. tracing
	if s.shutdownTracing, err = telemetry.SetupTracing(ctx, cfg.Tracing, cfg.Service.Name, cfg.Service.Version); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	// 2. storage
	if s.store, err = repository.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if err = s.store.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	// 3. audit publisher
	if s.audit, err = openAudit(cfg, o.audit); err != nil {
		return nil, err
	}

	// 4. handlers
	var publisher sink.Publisher
	if s.audit != nil {
		publisher = s.audit
	}
	users := handler.NewUserEventHandler(s.store, publisher, cfg.Topics.AuditEvents)
	registry := handler.NewRegistryFor(s.store, users)

	// 5. source and runner
	s.source = o.source
	if s.source == nil {
		if s.source, err = kafka.NewAdapter(DefaultSourceDriver); err != nil {
			return nil, err
		}
	}
	if err = s.source.Configure(kafka.FromService(cfg)); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	s.runner = pipeline.NewRunner(s.source, registry, pipeline.OptionsFrom(cfg))

	// 6. transport
	if s.grpc, err = transport.StartServer(cfg.Service.GRPCPort, s.store); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	// 7. metrics
	if cfg.Service.MetricsPort != 0 {
		if s.metrics, err = telemetry.Expose(cfg.Service.MetricsPort); err != nil {
			return nil, err
		}
	}

	logging.L().Info("service bootstrapped",
		"name", cfg.Service.Name,
		"version", cfg.Service.Version,
		"topics", event.NewTopicMap(cfg.Topics).Topics(),
		"commit_mode", string(cfg.Kafka.CommitMode),
		"audit_sink", cfg.Service.AuditSink,
	)
	return s, nil
}

func openAudit(cfg config.ServiceConfig, injected sink.Adapter) (sink.Adapter, error) {
	if injected != nil {
		if err := injected.Configure(cfg); err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		return injected, nil
	}
	if cfg.Service.AuditSink == "none" {
		return nil, nil
	}
	return sink.Open(cfg.Service.AuditSink, cfg)
}
