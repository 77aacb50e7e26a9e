package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// batchQueueKey is the Redis list the upload path pushes batch IDs onto and
// the worker pool pops from.
const batchQueueKey = "veritext:batch_queue"

// BatchProcessor runs the pipeline for one batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchID string) error
}

// QueueService decouples batch submission from batch processing: SubmitBatch
// enqueues and returns immediately, and a bounded pool of workers pulls batch
// IDs and runs them, so one slow batch cannot starve the upload path.
type QueueService struct {
	client    *redis.Client
	processor BatchProcessor
	workers   int

	wg sync.WaitGroup
}

func NewQueueService(client *redis.Client, processor BatchProcessor, workers int) *QueueService {
	if workers <= 0 {
		workers = 1
	}
	return &QueueService{
		client:    client,
		processor: processor,
		workers:   workers,
	}
}

// SubmitBatch enqueues a batch for asynchronous processing.
func (q *QueueService) SubmitBatch(ctx context.Context, batchID string) error {
	if err := q.client.LPush(ctx, batchQueueKey, batchID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue batch %s: %w", batchID, err)
	}
	log.Printf("Batch %s enqueued for processing", batchID)
	return nil
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (q *QueueService) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	log.Printf("Started %d batch worker(s)", q.workers)
}

// Wait blocks until all workers have exited.
func (q *QueueService) Wait() {
	q.wg.Wait()
}

func (q *QueueService) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Short block so a cancelled context is observed promptly.
		values, err := q.client.BRPop(ctx, time.Second, batchQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("ERROR in worker %d dequeue: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		if len(values) < 2 {
			continue
		}

		batchID := values[1]
		log.Printf("Worker %d picked up batch %s", id, batchID)
		if err := q.processor.ProcessBatch(ctx, batchID); err != nil {
			log.Printf("ERROR processing batch %s: %v", batchID, err)
		}
	}
}
