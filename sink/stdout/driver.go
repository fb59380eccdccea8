// Package stdout is a dry-run sink printing each message as one line.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"userprofile/internal/config"
	"userprofile/sink"
)

type driver struct {
	mu     sync.Mutex // serialises writes
	w      io.Writer
	seq    uint64
	closed atomic.Bool
}

// New returns a stdout sink writing to w (os.Stdout when nil).
func New(w io.Writer) sink.Adapter {
	if w == nil {
		w = os.Stdout
	}
	return &driver{w: w}
}

func (d *driver) Configure(config.ServiceConfig) error { return nil }

func (d *driver) Publish(ctx context.Context, m sink.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.closed.Load() {
		return fmt.Errorf("stdout-sink: closed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	_, err := fmt.Fprintf(d.w, "[sink %06d] %s key=%q%s %s\n", d.seq, m.Topic, m.Key, formatHeaders(m.Headers), m.Value)
	return err
}

func (d *driver) Close() error {
	d.closed.Store(true)
	return nil
}

func formatHeaders(h map[string]string) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, h[k])
	}
	return b.String()
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return New(nil) })
}
