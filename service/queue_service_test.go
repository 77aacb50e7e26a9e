package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu      sync.Mutex
	batches []string
	done    chan string
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{done: make(chan string, 16)}
}

func (p *recordingProcessor) ProcessBatch(_ context.Context, batchID string) error {
	p.mu.Lock()
	p.batches = append(p.batches, batchID)
	p.mu.Unlock()
	p.done <- batchID
	return nil
}

func (p *recordingProcessor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.batches))
	copy(out, p.batches)
	return out
}

func TestSubmitBatchEnqueues(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewQueueService(client, newRecordingProcessor(), 1)
	require.NoError(t, q.SubmitBatch(context.Background(), "batch-42"))

	values, err := mr.List(batchQueueKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch-42"}, values)
}

func TestWorkerConsumesQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	processor := newRecordingProcessor()
	q := NewQueueService(client, processor, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	require.NoError(t, q.SubmitBatch(ctx, "batch-a"))
	require.NoError(t, q.SubmitBatch(ctx, "batch-b"))

	for i := 0; i < 2; i++ {
		select {
		case <-processor.done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not pick up batch in time")
		}
	}

	assert.ElementsMatch(t, []string{"batch-a", "batch-b"}, processor.seen())

	cancel()
	q.Wait()
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewQueueService(client, newRecordingProcessor(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		q.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop after cancel")
	}
}

func TestNewQueueServiceWorkerFloor(t *testing.T) {
	q := NewQueueService(nil, nil, 0)
	assert.Equal(t, 1, q.workers)
}
