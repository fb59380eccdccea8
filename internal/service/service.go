package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"userprofile/internal/config"
	"userprofile/internal/logging"
	"userprofile/internal/pipeline"
	"userprofile/internal/repository"
	"userprofile/internal/telemetry"
	"userprofile/internal/transport"
	"userprofile/sink"
	"userprofile/source/kafka"
)

const shutdownTimeout = 10 * time.Second

type Service struct {
	cfg config.ServiceConfig

	store           repository.Store
	audit           sink.Adapter // nil when audit_sink is none
	source          kafka.Adapter
	runner          *pipeline.Runner
	grpc            *transport.Server
	metrics         *telemetry.MetricsServer
	shutdownTracing func(context.Context) error

	stopOnce sync.Once
	stopErr  error
}

// Store exposes the repository, mainly for inspection in tests and tools.
func (s *Service) Store() repository.Store { return s.store }

// GRPCAddr is the address the query server listens on.
func (s *Service) GRPCAddr() string { return s.grpc.Addr() }

// Run consumes and serves until ctx is cancelled or a component fails, then
// stops the service.
func (s *Service) Run(ctx context.Context) error {
	logging.L().Info("service starting", "grpc", s.grpc.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.runner.Run(gctx); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		return nil
	})
	g.Go(func() error { return s.grpc.Serve(gctx) })

	err := g.Wait()
	if err != nil {
		logging.Error(ctx, "service run", err)
	}
	return errors.Join(err, s.Stop())
}

// Stop releases every component in reverse start order. It is safe to call
// more than once; later calls return the first result.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if s.metrics != nil {
			errs = append(errs, s.metrics.Stop(ctx))
		}
		if s.grpc != nil {
			s.grpc.Stop()
		}
		if s.source != nil {
			errs = append(errs, wrap("source", s.source.Close()))
		}
		if s.audit != nil {
			errs = append(errs, wrap("audit sink", s.audit.Close()))
		}
		if s.store != nil {
			errs = append(errs, wrap("store", s.store.Close()))
		}
		if s.shutdownTracing != nil {
			errs = append(errs, wrap("tracing", s.shutdownTracing(ctx)))
		}
		s.stopErr = errors.Join(errs...)
		logging.L().Info("service stopped", "name", s.cfg.Service.Name)
	})
	return s.stopErr
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", what, err)
}
