// Package sink publishes messages produced by the service (audit events,
// CLI-produced events) to an external destination.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"userprofile/internal/config"
)

// Message is one record to publish.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

//go:generate mockgen -destination=mocks/publisher.go -package=mocks userprofile/sink Publisher

// Publisher delivers messages synchronously; Publish returns once the
// destination accepted the message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error // idempotent
}

// Adapter is a Publisher built from the service configuration.
type Adapter interface {
	Publisher
	Configure(config.ServiceConfig) error
}

/*──────── registry ───────*/

type factory = func() Adapter

var (
	mu  sync.RWMutex
	reg = map[string]factory{}
)

func Register(name string, f factory) {
	mu.Lock()
	reg[name] = f
	mu.Unlock()
}

// NewAdapter returns an unconfigured adapter by name ("kafka", "stdout").
func NewAdapter(name string) (Adapter, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q (have %v)", name, Names())
}

// Open is NewAdapter followed by Configure.
func Open(name string, cfg config.ServiceConfig) (Adapter, error) {
	a, err := NewAdapter(name)
	if err != nil {
		return nil, err
	}
	if err := a.Configure(cfg); err != nil {
		return nil, fmt.Errorf("sink %s: %w", name, err)
	}
	return a, nil
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
