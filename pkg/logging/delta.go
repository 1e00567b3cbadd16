// Package logging provides the CLI's slog setup.
package logging

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// DeltaKey is the attribute holding the time since the previous record.
const DeltaKey = "delta"

type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *clock) since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var d time.Duration
	if !c.last.IsZero() {
		d = t.Sub(c.last)
	}
	c.last = t
	return d
}

// DeltaHandler adds the milliseconds elapsed since the previous record to
// every record. Loggers derived with With share one clock, so the delta is
// across the whole process.
type DeltaHandler struct {
	next  slog.Handler
	clock *clock
}

// NewDeltaHandler wraps next.
func NewDeltaHandler(next slog.Handler) *DeltaHandler {
	return &DeltaHandler{next: next, clock: &clock{now: time.Now}}
}

func (h *DeltaHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DeltaHandler) Handle(ctx context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = h.clock.now()
	}
	d := h.clock.since(t)
	r.AddAttrs(slog.String(DeltaKey, "+"+strconv.FormatInt(d.Milliseconds(), 10)+"ms"))
	return h.next.Handle(ctx, r)
}

func (h *DeltaHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DeltaHandler{next: h.next.WithAttrs(attrs), clock: h.clock}
}

func (h *DeltaHandler) WithGroup(name string) slog.Handler {
	return &DeltaHandler{next: h.next.WithGroup(name), clock: h.clock}
}
