package worker

import (
	"context"
	"log"

	"golang.org/x/sync/semaphore"

	"pdf-markdown-service/internal/service"
)

// Background runs each task on a detached goroutine, capped by a semaphore so
// heavy conversions cannot pile up on a constrained accelerator. Suited to a
// single-process deployment; the pool strategy covers everything else.
type Background struct {
	processor *Processor
	sem       *semaphore.Weighted
}

func NewBackground(processor *Processor, maxConcurrent int64) *Background {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Background{
		processor: processor,
		sem:       semaphore.NewWeighted(maxConcurrent),
	}
}

// Submit returns immediately; the attempt runs under its own context because
// the originating request's context is canceled when the response is sent.
func (b *Background) Submit(_ context.Context, task service.ConversionTask) error {
	go func() {
		ctx := context.Background()
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer b.sem.Release(1)

		if err := b.processor.Process(ctx, task); err != nil {
			log.Printf("[background] file_id=%s process error=%v", task.FileID, err)
		}
	}()
	return nil
}
