// Package kafka consumes the service topics through a Kafka consumer group
// and hands each record to the pipeline as an event.Event.
package kafka

import (
	"context"

	"userprofile/internal/event"
)

// EmitFunc receives one consumed event. A non-nil error ends the claim.
type EmitFunc func(event.Event) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitFunc) error
	Close() error
}

// AckAware adapters release offsets once the pipeline acknowledges them;
// without it every emitted record counts as processed.
type AckAware interface {
	OnAck(event.Checkpoint)
}
