package pipeline

import (
	"sync"
	"time"

	"userprofile/internal/config"
	"userprofile/internal/event"
)

// acker batches checkpoints and hands them to deliver after batchSize
// entries or flushEvery since the first unflushed one, whichever comes
// first. batchSize 0 delivers every checkpoint immediately.
type acker struct {
	deliver    func(event.Checkpoint)
	batchSize  int
	flushEvery time.Duration

	mu      sync.Mutex
	pending []event.Checkpoint
	timer   *time.Timer // nil until the first checkpoint of a batch
	stopped bool
}

func newAcker(cfg config.Ack, deliver func(event.Checkpoint)) *acker {
	return &acker{deliver: deliver, batchSize: cfg.BatchSize, flushEvery: cfg.FlushInt}
}

func (a *acker) Add(cp event.Checkpoint) {
	a.mu.Lock()
	if a.stopped || a.batchSize <= 0 {
		a.mu.Unlock()
		a.deliver(cp)
		return
	}
	a.pending = append(a.pending, cp)
	if len(a.pending) >= a.batchSize {
		batch := a.takeLocked()
		a.mu.Unlock()
		a.deliverAll(batch)
		return
	}
	if a.flushEvery > 0 && a.timer == nil {
		a.timer = time.AfterFunc(a.flushEvery, a.Flush)
	}
	a.mu.Unlock()
}

// Flush delivers everything pending.
func (a *acker) Flush() {
	a.mu.Lock()
	batch := a.takeLocked()
	a.mu.Unlock()
	a.deliverAll(batch)
}

// Stop flushes and switches to immediate delivery.
func (a *acker) Stop() {
	a.mu.Lock()
	a.stopped = true
	batch := a.takeLocked()
	a.mu.Unlock()
	a.deliverAll(batch)
}

func (a *acker) takeLocked() []event.Checkpoint {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	batch := a.pending
	a.pending = nil
	return batch
}

func (a *acker) deliverAll(batch []event.Checkpoint) {
	for _, cp := range batch {
		a.deliver(cp)
	}
}
