// Package klog is the kernel's structured logging sink: a log/slog
// Logger backed by a custom Handler that writes formatted records to
// whatever writer the boot sequence has available (framebuffer text
// console or serial port), since the target environment never has a
// real stdout.
//
// The teacher's own boot-time code favors bare fmt.Printf one-liners
// (biscuit/src/mem/mem.go, dmap.go); that style is not carried over:
// cmd/kernel's Kmain initializes klog before anything else, so there
// are no pre-logger prints. klog carries structured records: page
// faults, double faults, OOM, scancode overflow warnings — following
// the separation gopher-os draws between kernel/kfmt/early and its
// later structured kernel logging.
package klog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Writer is anything that can sink formatted log lines; on real
// hardware this is the framebuffer or serial-port writer, both of
// which spec.md's Concurrency model requires to be written under a
// spinlock with interrupts disabled.
type Writer interface {
	io.Writer
}

// handler formats each record as "LEVEL msg key=val key=val" and
// writes it to the configured Writer under a mutex, standing in for
// the "spinlock held with IRQs disabled" discipline §5 requires of
// the framebuffer writer.
type handler struct {
	mu  *sync.Mutex
	w   Writer
	lvl slog.Leveler
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, "%s %s", r.Level.String(), r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	fmt.Fprintln(h.w)
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *handler) WithGroup(name string) slog.Handler       { return h }

var (
	mu      sync.Mutex
	logger  = slog.New(&handler{mu: &sync.Mutex{}, w: io.Discard, lvl: slog.LevelInfo})
)

// Init points the kernel logger at w, called once early boot has a
// framebuffer or serial writer available.
func Init(w Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(&handler{mu: &sync.Mutex{}, w: w, lvl: level})
}

func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}
