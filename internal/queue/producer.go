package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

type Producer struct {
	nc           *nats.Conn
	js           jetstream.JetStream
	tasksSubject string
	eventsBase   string
}

func connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(cfg config.QueueConfig) (*Producer, error) {
	nc, js, err := connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js, tasksSubject: cfg.Name, eventsBase: cfg.EventsName}, nil
}

// EnsureQueues creates the task and event streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureQueues(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        streamName(p.tasksSubject),
			Subjects:    []string{p.tasksSubject},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Description: "Face-cut tasks, one per detected face",
		},
		{
			Name:        streamName(p.eventsBase),
			Subjects:    []string{p.eventsBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Description: "Face cropped/labeled events",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishTask publishes one face-cut task.
func (p *Producer) PublishTask(ctx context.Context, task models.FaceTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal face task: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.tasksSubject, payload); err != nil {
		return fmt.Errorf("publish face task: %w", err)
	}
	return nil
}

// PublishEvent publishes a face event under <events>.<type>.
func (p *Producer) PublishEvent(ctx context.Context, ev models.FaceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal face event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.eventsBase, ev.Type)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish face event: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the task stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, streamName(p.tasksSubject))
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
