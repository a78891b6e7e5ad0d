package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/ingest"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
	"github.com/your-org/facebot/internal/vision"
)

// listenUploads runs the trigger for every object created in bucket until ctx
// is done, re-subscribing when the notification stream drops.
func listenUploads(ctx context.Context, store *storage.MinIOStore, trigger *ingest.Trigger, bucket string) {
	for ctx.Err() == nil {
		for info := range store.ListenUploads(ctx, bucket) {
			if info.Err != nil {
				slog.Warn("bucket notification error", "bucket", bucket, "error", info.Err)
				continue
			}
			for _, rec := range info.Records {
				key, err := url.QueryUnescape(rec.S3.Object.Key)
				if err != nil {
					slog.Error("decode object key", "key", rec.S3.Object.Key, "error", err)
					continue
				}
				if _, err := trigger.HandleObject(ctx, rec.S3.Bucket.Name, key); err != nil {
					slog.Error("ingest photo", "bucket", rec.S3.Bucket.Name, "object", key, "error", err)
				}
			}
		}

		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
			slog.Info("re-subscribing to bucket notifications", "bucket", bucket)
		}
	}
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting facebot ingestor", "bucket", cfg.MinIO.PhotosBucket, "vision", cfg.Vision.Provider)

	if err := cfg.ValidateVision(); err != nil {
		slog.Error("invalid vision config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBuckets(ctx, cfg.MinIO.PhotosBucket); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to the task queue
	publisher, err := queue.NewPublisher(cfg.Queue)
	if err != nil {
		slog.Error("connect to queue", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	if err := publisher.EnsureQueues(ctx); err != nil {
		slog.Warn("ensure queues", "error", err)
	}

	detector, err := vision.NewDetector(ctx, cfg.Vision)
	if err != nil {
		slog.Error("init face detector", "error", err)
		os.Exit(1)
	}

	trigger := ingest.NewTrigger(minioStore, detector, publisher, cfg.Vision.MaxPhotoBytes)
	go listenUploads(ctx, minioStore, trigger, cfg.MinIO.PhotosBucket)

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("ingestor metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down ingestor...")
	cancel()
	time.Sleep(time.Second)
	slog.Info("ingestor stopped")
}
