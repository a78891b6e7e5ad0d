package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/facecut"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facebot face-cut worker",
		"queue", cfg.Queue.Driver,
		"batch_size", cfg.Queue.BatchSize,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database, cfg.Table)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Warn("ensure face table", "error", err)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBuckets(ctx, cfg.MinIO.PhotosBucket, cfg.MinIO.FacesBucket); err != nil {
		slog.Warn("ensure minio buckets", "error", err)
	}

	// Events publisher
	publisher, err := queue.NewPublisher(cfg.Queue)
	if err != nil {
		slog.Error("connect to queue", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()
	if err := publisher.EnsureQueues(ctx); err != nil {
		slog.Warn("ensure queues", "error", err)
	}

	cutter := facecut.NewCutter(minioStore, db, publisher, cfg.MinIO.PhotosBucket, cfg.MinIO.FacesBucket)

	subscriber, err := queue.NewSubscriber(cfg.Queue)
	if err != nil {
		slog.Error("create task subscriber", "error", err)
		os.Exit(1)
	}
	defer subscriber.Close()

	err = subscriber.ConsumeTasks(ctx, "face-cut-workers", cfg.Queue.BatchSize, func(ctx context.Context, batch [][]byte) {
		cutter.ProcessBatch(ctx, batch)
	})
	if err != nil {
		slog.Error("start task consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	if reporter, ok := publisher.(queue.DepthReporter); ok {
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					depth, err := reporter.QueueDepth(ctx)
					if err == nil {
						observability.QueueDepth.Set(float64(depth))
					}
				}
			}
		}()
	}

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
