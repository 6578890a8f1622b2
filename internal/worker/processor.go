package worker

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pdf-markdown-service/internal/entity"
	"pdf-markdown-service/internal/service"
)

var (
	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfmd_conversions_total",
		Help: "Finished conversion attempts by terminal status and mode.",
	}, []string{"status", "mode"})

	conversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdfmd_conversion_duration_seconds",
		Help:    "Wall-clock duration of one conversion attempt.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	activeConversions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdfmd_active_conversions",
		Help: "Conversion attempts currently running.",
	})
)

// Store port: the terminal-state writes the processor needs.
type Store interface {
	MarkFinished(ctx context.Context, id string, status entity.FileStatus, completedAt time.Time) error
	PutJob(ctx context.Context, j *entity.ConversionJob) error
}

// Converter port (implementation: converter.Registry).
type Converter interface {
	Convert(ctx context.Context, filePath string, mode entity.Mode) (string, error)
}

// Processor executes one conversion attempt and records its outcome exactly
// once. A backend fault never escapes: every code path ends in a terminal
// job row plus a terminal file status. Only a failure of the store itself is
// returned, so the dispatch layer can re-deliver the attempt.
type Processor struct {
	store     Store
	converter Converter
}

func NewProcessor(store Store, converter Converter) *Processor {
	return &Processor{store: store, converter: converter}
}

func (p *Processor) Process(ctx context.Context, task service.ConversionTask) error {
	start := time.Now()
	activeConversions.Inc()
	defer activeConversions.Dec()
	defer func() {
		conversionDuration.Observe(time.Since(start).Seconds())
	}()

	log.Printf("[worker] file_id=%s mode=%s status=started", task.FileID, task.Mode)

	markdown, convErr := p.converter.Convert(ctx, task.Path, task.Mode)

	now := time.Now().UTC()
	job := &entity.ConversionJob{
		ID:        uuid.NewString(),
		FileID:    task.FileID,
		CreatedAt: now,
	}

	if convErr != nil || strings.TrimSpace(markdown) == "" {
		msg := "converter produced no output"
		if convErr != nil {
			msg = convErr.Error()
		}
		job.Status = entity.JobFailed
		job.ErrorMessage = &msg

		if err := p.store.PutJob(ctx, job); err != nil {
			log.Printf("[worker] file_id=%s put_job error=%v", task.FileID, err)
			return err
		}
		if err := p.store.MarkFinished(ctx, task.FileID, entity.StatusFailed, now); err != nil {
			log.Printf("[worker] file_id=%s mark_finished error=%v", task.FileID, err)
			return err
		}

		conversionsTotal.WithLabelValues("failed", string(task.Mode)).Inc()
		log.Printf("[worker] file_id=%s mode=%s status=failed duration_ms=%d error=%s",
			task.FileID, task.Mode, time.Since(start).Milliseconds(), msg,
		)
		return nil
	}

	job.Status = entity.JobCompleted
	job.Result = markdown

	if err := p.store.PutJob(ctx, job); err != nil {
		log.Printf("[worker] file_id=%s put_job error=%v", task.FileID, err)
		return err
	}
	if err := p.store.MarkFinished(ctx, task.FileID, entity.StatusCompleted, now); err != nil {
		log.Printf("[worker] file_id=%s mark_finished error=%v", task.FileID, err)
		return err
	}

	conversionsTotal.WithLabelValues("completed", string(task.Mode)).Inc()
	log.Printf("[worker] file_id=%s mode=%s status=completed duration_ms=%d chars=%d",
		task.FileID, task.Mode, time.Since(start).Milliseconds(), len(markdown),
	)
	return nil
}
