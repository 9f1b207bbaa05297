package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhio2i/TDF-sub001/internal/engine"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startLoop(t *testing.T, opts engine.Options) (*engine.Loop, *scene.Hierarchy) {
	t.Helper()
	h := scene.New()
	l := engine.New(h, opts, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, h
}

func TestLoop_CallRunsOnLoop(t *testing.T) {
	l, _ := startLoop(t, engine.Options{TickInterval: time.Hour})

	var id string
	err := l.Call(context.Background(), func(h *scene.Hierarchy) error {
		p, err := h.AddProfileCategory("Platform")
		if err != nil {
			return err
		}
		id = p.ID()
		return nil
	})
	require.NoError(t, err)

	err = l.Call(context.Background(), func(h *scene.Hierarchy) error {
		_, ok := h.ProfileCategory(id)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestLoop_CallReturnsTaskError(t *testing.T) {
	l, _ := startLoop(t, engine.Options{TickInterval: time.Hour})
	err := l.Call(context.Background(), func(h *scene.Hierarchy) error {
		return h.RemoveEntity("missing")
	})
	assert.ErrorIs(t, err, scene.ErrNotFound)
}

func TestLoop_SerializesConcurrentSubmitters(t *testing.T) {
	l, _ := startLoop(t, engine.Options{TickInterval: time.Hour})

	var pid string
	require.NoError(t, l.Call(context.Background(), func(h *scene.Hierarchy) error {
		p, err := h.AddProfileCategory("Platform")
		pid = p.ID()
		return err
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Call(context.Background(), func(h *scene.Hierarchy) error {
				_, err := h.AddEntity(pid, "Jet", true)
				return err
			}))
		}()
	}
	wg.Wait()

	require.NoError(t, l.Call(context.Background(), func(h *scene.Hierarchy) error {
		assert.Len(t, h.EntityIDs(), 50)
		return nil
	}))
}

func TestLoop_TickRunsFunctionsInOrder(t *testing.T) {
	l, _ := startLoop(t, engine.Options{TickInterval: 5 * time.Millisecond})

	var mu sync.Mutex
	var order []string
	l.OnTick(func(*scene.Hierarchy, time.Duration) {
		mu.Lock()
		order = append(order, "simulate")
		mu.Unlock()
	})
	l.OnTick(func(_ *scene.Hierarchy, dt time.Duration) {
		assert.Positive(t, dt)
		mu.Lock()
		order = append(order, "broadcast")
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i+1 < len(order); i += 2 {
		assert.Equal(t, []string{"simulate", "broadcast"}, order[i:i+2])
	}
}

func TestLoop_DoRejectsWhenFull(t *testing.T) {
	l := engine.New(scene.New(), engine.Options{QueueSize: 1}, newTestLogger())
	require.NoError(t, l.Do(func(*scene.Hierarchy) {}))
	assert.ErrorIs(t, l.Do(func(*scene.Hierarchy) {}), engine.ErrQueueFull)
}

func TestLoop_StoppedLoopRejectsWork(t *testing.T) {
	l := engine.New(scene.New(), engine.Options{}, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))

	assert.ErrorIs(t, l.Do(func(*scene.Hierarchy) {}), engine.ErrStopped)
	err := l.Call(context.Background(), func(*scene.Hierarchy) error { return nil })
	assert.True(t, errors.Is(err, engine.ErrStopped))
}

func TestLoop_PanickingTaskDoesNotStopLoop(t *testing.T) {
	l, _ := startLoop(t, engine.Options{TickInterval: time.Hour})
	require.NoError(t, l.Do(func(*scene.Hierarchy) { panic("boom") }))
	assert.NoError(t, l.Call(context.Background(), func(*scene.Hierarchy) error { return nil }))
}
