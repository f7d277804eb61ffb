// Package logtail wraps a slog.Handler and keeps the most recent log
// lines in memory. When a run fails, the tail is attached to the outgoing
// report so the alert carries context without anyone having to grep
// container logs first.
package logtail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

type Handler struct {
	inner slog.Handler
	attrs []slog.Attr
	buf   *buffer
}

type buffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// New wraps inner, retaining the last capacity formatted records.
func New(inner slog.Handler, capacity int) *Handler {
	if capacity < 1 {
		capacity = 1
	}
	return &Handler{
		inner: inner,
		buf:   &buffer{lines: make([]string, capacity)},
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", rec.Time.UTC().Format("15:04:05.000"), rec.Level, rec.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	h.buf.append(sb.String())
	return h.inner.Handle(ctx, rec)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{inner: h.inner.WithAttrs(attrs), attrs: merged, buf: h.buf}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), attrs: h.attrs, buf: h.buf}
}

// Tail returns the retained lines, oldest first.
func (h *Handler) Tail() []string {
	return h.buf.snapshot()
}

func (b *buffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

func (b *buffer) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]string, b.next)
		copy(out, b.lines[:b.next])
		return out
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}
