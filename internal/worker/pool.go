package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"pdf-markdown-service/internal/service"
)

// QueueExecutor submits tasks through the redis queue for the worker pool.
type QueueExecutor struct {
	queue service.Queue
}

func NewQueueExecutor(queue service.Queue) *QueueExecutor {
	return &QueueExecutor{queue: queue}
}

func (e *QueueExecutor) Submit(ctx context.Context, task service.ConversionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, payload)
}

// Pool claims tasks from the queue and runs them on a fixed number of
// workers. The concurrency cap is the resource bound for the conversion
// engine and is fixed at startup.
type Pool struct {
	queue      service.Queue
	processor  *Processor
	workers    int
	claimDelay time.Duration
}

func NewPool(queue service.Queue, processor *Processor, workers int) *Pool {
	if workers <= 0 {
		workers = 3
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
	}
}

func (p *Pool) Run(ctx context.Context) {
	log.Printf("[pool] started workers=%d", p.workers)

	taskCh := make(chan string)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			for payload := range taskCh {
				var task service.ConversionTask
				if err := json.Unmarshal([]byte(payload), &task); err != nil {
					log.Printf("[pool-%d] bad payload: %v", n, err)
					_ = p.queue.Ack(ctx, payload)
					continue
				}

				err := p.processor.Process(ctx, task)
				if err != nil {
					// terminal state was not recorded (store failure);
					// leave the payload in processing so the reaper
					// re-delivers it
					log.Printf("[pool-%d] file_id=%s process error=%v", n, task.FileID, err)
					continue
				}

				if ackErr := p.queue.Ack(ctx, payload); ackErr != nil {
					log.Printf("[pool-%d] file_id=%s ack error=%v", n, task.FileID, ackErr)
				}
			}
		}(i + 1)
	}

	// Listener: atomically claim from queue -> processing
	for {
		select {
		case <-ctx.Done():
			close(taskCh)
			log.Println("[pool] stopped")
			return
		default:
			payload, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				// timeout/redis.Nil/ctx cancel, nothing fatal
				continue
			}
			select {
			case taskCh <- payload:
			case <-ctx.Done():
				close(taskCh)
				return
			}
		}
	}
}
