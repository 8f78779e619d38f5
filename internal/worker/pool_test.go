package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPoolProcessesEnqueuedJobs(t *testing.T) {
	pool := NewPool(2, 8, testLogger())

	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	done := make(chan struct{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, func(ctx context.Context, jobID uuid.UUID) error {
		mu.Lock()
		seen[jobID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		assert.True(t, pool.Enqueue(id))
	}

	for range ids {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	for _, id := range ids {
		assert.True(t, seen[id])
	}
	mu.Unlock()

	cancel()
	pool.Wait()
}

func TestPoolEnqueueReportsSaturation(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	// No workers started; the single buffer slot fills immediately.
	assert.True(t, pool.Enqueue(uuid.New()))
	assert.False(t, pool.Enqueue(uuid.New()))
}

func TestPoolSurvivesHandlerPanic(t *testing.T) {
	pool := NewPool(1, 4, testLogger())
	done := make(chan struct{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := true
	pool.Start(ctx, func(ctx context.Context, jobID uuid.UUID) error {
		if first {
			first = false
			defer func() { done <- struct{}{} }()
			panic("boom")
		}
		done <- struct{}{}
		return nil
	})

	pool.Enqueue(uuid.New())
	pool.Enqueue(uuid.New())

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker died after panic")
		}
	}
}
