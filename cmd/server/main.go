package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf-markdown-service/internal/config"
	"pdf-markdown-service/internal/converter"
	"pdf-markdown-service/internal/entity"
	"pdf-markdown-service/internal/repository/postgresql"
	"pdf-markdown-service/internal/service"
	httptransport "pdf-markdown-service/internal/transport/http"
	"pdf-markdown-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres
	if err := postgresql.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer pool.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	// DI
	repo := postgresql.NewFileRepository(pool)

	convertTimeout := time.Duration(cfg.ConvertTimeoutSeconds) * time.Second
	registry := converter.NewRegistry(func(mode entity.Mode) converter.Backend {
		return converter.NewCLIBackend(cfg.ConverterBin, mode, convertTimeout)
	})
	processor := worker.NewProcessor(repo, registry)

	var executor service.ConversionExecutor
	switch cfg.Executor {
	case "pool":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		queue := service.NewRedisQueue(rdb, cfg.RedisQueueKey, cfg.RedisProcessingKey)
		executor = worker.NewQueueExecutor(queue)

		workers := worker.NewPool(queue, processor, cfg.Workers)
		go workers.Run(ctx)

		// Reaper: periodically returns tasks from processing back to the
		// queue (a worker crashed or was restarted mid-conversion). The
		// staleness threshold sits above the longest attempt, which is
		// the document timeout plus the backend's shutdown grace, so a
		// conversion still running is never handed out twice.
		staleAfter := convertTimeout + time.Minute
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := queue.RequeueStale(ctx, staleAfter, 100)
					if err != nil {
						log.Printf("requeue error: %v", err)
						continue
					}
					if n > 0 {
						log.Printf("requeued %d conversions from processing", n)
					}
				}
			}
		}()
	default:
		executor = worker.NewBackground(processor, int64(cfg.MaxConversions))
	}

	fileSvc := service.NewFileService(repo, executor, cfg.UploadDir)
	aggSvc := service.NewAggregateService(repo)
	handler := httptransport.NewHandler(fileSvc, aggSvc)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.Routes(handler),
	}

	go func() {
		log.Printf("[server] listening addr=%s executor=%s workers=%d max_conversions=%d upload_dir=%s postgres_dsn=%s",
			srv.Addr, cfg.Executor, cfg.Workers, cfg.MaxConversions, cfg.UploadDir, redactDSN(cfg.PostgresDSN),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	log.Println("server stopped")
}

// redactDSN masks the password in a postgres DSN before logging:
// user:pass@ -> user:****@. Does not break DSNs without a password.
func redactDSN(dsn string) string {
	re := regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)
	return re.ReplaceAllString(dsn, `://$1:****@`)
}
