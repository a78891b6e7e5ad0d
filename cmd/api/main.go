package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/facebot/internal/api"
	"github.com/your-org/facebot/internal/api/handlers"
	"github.com/your-org/facebot/internal/api/ws"
	"github.com/your-org/facebot/internal/bot"
	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/ingest"
	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
	"github.com/your-org/facebot/internal/vision"
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

	slog.Info("starting facebot API service", "port", cfg.Server.Port, "queue", cfg.Queue.Driver)

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

	// WebSocket hub fed by face events
	hub := ws.NewHub(func(faceID string) string {
		return bot.PhotoURL(cfg.Bot.GatewayURL, "face", faceID)
	})
	go hub.Run()

	subscriber, err := queue.NewSubscriber(cfg.Queue)
	if err != nil {
		slog.Error("create event subscriber", "error", err)
		os.Exit(1)
	}
	defer subscriber.Close()

	err = subscriber.ConsumeEvents(ctx, "api-events", func(ctx context.Context, data []byte) error {
		var ev models.FaceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		hub.BroadcastEvent(ev)
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Ingestion trigger for storage events posted over HTTP
	var trigger handlers.EventTrigger
	if err := cfg.ValidateVision(); err != nil {
		slog.Warn("vision not configured, storage event endpoint disabled", "error", err)
	} else if detector, err := vision.NewDetector(ctx, cfg.Vision); err != nil {
		slog.Warn("init face detector, storage event endpoint disabled", "error", err)
	} else {
		trigger = ingest.NewTrigger(minioStore, detector, publisher, cfg.Vision.MaxPhotoBytes)
	}

	// Bot webhook
	var botHandler handlers.UpdateHandler
	if err := cfg.ValidateBot(); err != nil {
		slog.Warn("bot not configured, webhook disabled", "error", err)
	} else {
		botHandler = bot.NewHandler(bot.HandlerConfig{
			Sessions:     db,
			Sender:       bot.NewClient(cfg.Bot),
			Objects:      minioStore,
			Events:       publisher,
			BotName:      cfg.Bot.Name,
			GatewayURL:   cfg.Bot.GatewayURL,
			FacesBucket:  cfg.MinIO.FacesBucket,
			PhotosBucket: cfg.MinIO.PhotosBucket,
			Messages:     cfg.Bot.Messages,
		})
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		WebhookSecret: cfg.Server.WebhookSecret,
		GatewayURL:    cfg.Bot.GatewayURL,
		FacesBucket:   cfg.MinIO.FacesBucket,
		PhotosBucket:  cfg.MinIO.PhotosBucket,
		Checks: map[string]handlers.Check{
			"postgres": db.Ping,
			"minio":    minioStore.Ping,
			"queue":    func(context.Context) error { return publisher.Ping() },
		},
		Sessions: db,
		Objects:  minioStore,
		Events:   publisher,
		Trigger:  trigger,
		Bot:      botHandler,
		Hub:      hub,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
