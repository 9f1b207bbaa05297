// Package engine runs every hierarchy mutation on one goroutine. Network
// handlers, the HTTP API and tool servers hand work to the Loop instead of
// touching the hierarchy themselves; a ticker drives the periodic simulation
// step and telemetry broadcast on the same goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Abhio2i/TDF-sub001/internal/metrics"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

const (
	// DefaultTickInterval matches the telemetry rate peers expect.
	DefaultTickInterval = 100 * time.Millisecond
	// DefaultQueueSize bounds pending tasks.
	DefaultQueueSize = 1024
)

var (
	// ErrQueueFull is returned by Do when the task queue has no room.
	ErrQueueFull = errors.New("engine: task queue full")
	// ErrStopped is returned once the loop has exited.
	ErrStopped = errors.New("engine: loop stopped")
)

// Task mutates or reads the hierarchy on the loop goroutine.
type Task func(h *scene.Hierarchy)

// TickFunc runs once per tick with the elapsed time since the previous tick.
type TickFunc func(h *scene.Hierarchy, dt time.Duration)

// Options configures a Loop. Zero values select defaults.
type Options struct {
	TickInterval time.Duration
	QueueSize    int
}

// Loop owns a Hierarchy and serializes all access to it.
type Loop struct {
	h        *scene.Hierarchy
	interval time.Duration
	tasks    chan Task
	logger   *slog.Logger

	mu    sync.Mutex
	ticks []TickFunc

	done chan struct{}
	once sync.Once
}

// New creates a Loop around h. It does nothing until Run.
func New(h *scene.Hierarchy, opts Options, logger *slog.Logger) *Loop {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Loop{
		h:        h,
		interval: opts.TickInterval,
		tasks:    make(chan Task, opts.QueueSize),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// OnTick appends fn to the functions run on every tick, in registration order.
func (l *Loop) OnTick(fn TickFunc) {
	l.mu.Lock()
	l.ticks = append(l.ticks, fn)
	l.mu.Unlock()
}

// Do enqueues fn without blocking.
func (l *Loop) Do(fn Task) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	default:
		metrics.Inc(metrics.TasksRejected)
		return ErrQueueFull
	}
}

// Submit enqueues fn, waiting for room until ctx is done.
func (l *Loop) Submit(ctx context.Context, fn Task) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and returns its error. It waits for both the
// enqueue and the result, bounded by ctx.
func (l *Loop) Call(ctx context.Context, fn func(h *scene.Hierarchy) error) error {
	result := make(chan error, 1)
	if err := l.Submit(ctx, func(h *scene.Hierarchy) { result <- fn(h) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks and ticks until ctx is cancelled. Tasks still queued
// when Run returns are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	last := time.Now()

	l.logger.Info("engine: loop started", "tick_interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("engine: loop stopped")
			return nil
		case fn := <-l.tasks:
			l.run(fn)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			l.tick(dt)
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run(fn Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("engine: task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn(l.h)
}

func (l *Loop) tick(dt time.Duration) {
	metrics.Inc(metrics.Ticks)
	l.mu.Lock()
	ticks := l.ticks
	l.mu.Unlock()
	for _, fn := range ticks {
		l.run(func(h *scene.Hierarchy) { fn(h, dt) })
	}
}
