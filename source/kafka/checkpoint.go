package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

/* ───────────────────────── Uncapped & Capped ───────────────────────────── */

// Uncapped tracks payloads in arrival order. Resolving a payload folds it
// into its predecessor, so Highest only advances once every earlier payload
// is resolved.
type node[T any] struct {
	pos        int64
	payload    T
	prev, next *node[T]
}

type Uncapped[T any] struct {
	cpPos      int64
	cpPay      *T
	start, end *node[T]
}

func NewUncapped[T any]() *Uncapped[T] { return &Uncapped[T]{} }

// Track appends p with weight size and returns its resolve func, which
// returns the highest contiguously resolved payload (nil if none yet).
func (u *Uncapped[T]) Track(p T, size int64) func() *T {
	n := &node[T]{payload: p, pos: size}
	if u.start == nil {
		u.start = n
	}
	if u.end != nil {
		n.prev = u.end
		n.pos += u.end.pos
		u.end.next = n
	} else {
		n.pos += u.cpPos
	}
	u.end = n
	return func() *T {
		if n.prev != nil {
			n.prev.pos = n.pos
			n.prev.payload = n.payload
			n.prev.next = n.next
		} else {
			tmp := n.payload
			u.cpPay, u.cpPos = &tmp, n.pos
			u.start = n.next
		}
		if n.next != nil {
			n.next.prev = n.prev
		} else {
			u.end = n.prev
		}
		return u.cpPay
	}
}

func (u *Uncapped[T]) Pending() int64 {
	if u.end == nil {
		return 0
	}
	return u.end.pos - u.cpPos
}

func (u *Uncapped[T]) Highest() *T { return u.cpPay }

var errTrackCanceled = errors.New("checkpoint: track canceled")

// Capped is a goroutine-safe Uncapped whose Track blocks while the pending
// weight would exceed cap.
type Capped[T any] struct {
	u    *Uncapped[T]
	cap  int64
	cond *sync.Cond
}

func NewCapped[T any](cap int64) *Capped[T] {
	return &Capped[T]{u: NewUncapped[T](), cap: cap, cond: sync.NewCond(&sync.Mutex{})}
}

func (c *Capped[T]) Track(ctx context.Context, p T, batch int64) (func() *T, error) {
	stop := context.AfterFunc(ctx, func() {
		c.cond.L.Lock()
		c.cond.Broadcast()
		c.cond.L.Unlock()
	})
	defer stop()

	c.cond.L.Lock()
	defer c.cond.L.Unlock()
	for pend := c.u.Pending(); pend > 0 && pend+batch > c.cap; pend = c.u.Pending() {
		if ctx.Err() != nil {
			return nil, errTrackCanceled
		}
		c.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, errTrackCanceled
	}
	res := c.u.Track(p, batch)
	return func() *T {
		c.cond.L.Lock()
		defer c.cond.L.Unlock()
		r := res()
		c.cond.Broadcast()
		return r
	}, nil
}

func (c *Capped[T]) Pending() int64 {
	c.cond.L.Lock()
	defer c.cond.L.Unlock()
	return c.u.Pending()
}

func (c *Capped[T]) Highest() *T {
	c.cond.L.Lock()
	defer c.cond.L.Unlock()
	return c.u.Highest()
}

/* ───────────────────────── Manager (commit helper) ────────────────────── */

type partitionKey struct {
	topic     string
	partition int32
}

// Manager keeps one Capped tracker per topic partition and decides when a
// driver should commit its marked offsets.
type Manager[T any] struct {
	cap           int64
	commitEveryNS int64
	lastCommitNS  int64

	mu    sync.Mutex
	parts map[partitionKey]*Capped[T]
}

func NewManager[T any](cap int64, commitEvery time.Duration) *Manager[T] {
	return &Manager[T]{
		cap:           cap,
		commitEveryNS: commitEvery.Nanoseconds(),
		parts:         make(map[partitionKey]*Capped[T]),
	}
}

func (m *Manager[T]) partition(topic string, partition int32) *Capped[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := partitionKey{topic, partition}
	c, ok := m.parts[k]
	if !ok {
		c = NewCapped[T](m.cap)
		m.parts[k] = c
	}
	return c
}

// Track registers payload on its partition. After the payload is processed
// the driver calls resolveFn, which returns the highest payload of that
// partition whose predecessors are all resolved and whether a commit is due.
func (m *Manager[T]) Track(ctx context.Context, topic string, partition int32, payload T) (resolveFn func() (highest *T, shouldCommit bool), err error) {
	res, err := m.partition(topic, partition).Track(ctx, payload, 1)
	if err != nil {
		return nil, err
	}
	return func() (*T, bool) {
		highest := res()
		return highest, m.commitDue()
	}, nil
}

func (m *Manager[T]) commitDue() bool {
	now := time.Now().UnixNano()
	last := atomic.LoadInt64(&m.lastCommitNS)
	if last+m.commitEveryNS > now {
		return false
	}
	return atomic.CompareAndSwapInt64(&m.lastCommitNS, last, now)
}

// Pending sums the unresolved payloads over all partitions.
func (m *Manager[T]) Pending() int64 {
	m.mu.Lock()
	parts := make([]*Capped[T], 0, len(m.parts))
	for _, c := range m.parts {
		parts = append(parts, c)
	}
	m.mu.Unlock()

	var n int64
	for _, c := range parts {
		n += c.Pending()
	}
	return n
}

// Reset forgets every partition; used when a rebalance revokes claims.
func (m *Manager[T]) Reset() {
	m.mu.Lock()
	m.parts = make(map[partitionKey]*Capped[T])
	m.mu.Unlock()
}
