package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facebot/internal/config"
)

type Consumer struct {
	nc           *nats.Conn
	js           jetstream.JetStream
	tasksSubject string
	eventsBase   string
}

func NewConsumer(cfg config.QueueConfig) (*Consumer, error) {
	nc, js, err := connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js, tasksSubject: cfg.Name, eventsBase: cfg.EventsName}, nil
}

// ConsumeTasks fetches face-cut tasks in batches of up to batchSize and hands each
// batch to handler. Tasks are never redelivered: the batch is acked after handler.
func (c *Consumer) ConsumeTasks(ctx context.Context, consumerName string, batchSize int, handler BatchHandler) error {
	name := streamName(c.tasksSubject)
	stream, err := c.js.Stream(ctx, name)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", name, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    1,
		FilterSubject: c.tasksSubject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch face tasks error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			var (
				msgs   []jetstream.Msg
				bodies [][]byte
			)
			for msg := range batch.Messages() {
				msgs = append(msgs, msg)
				bodies = append(bodies, msg.Data())
			}
			if err := batch.Error(); err != nil && ctx.Err() == nil {
				slog.Debug("face task batch ended", "error", err)
			}
			if len(msgs) == 0 {
				continue
			}

			handler(ctx, bodies)
			for _, msg := range msgs {
				_ = msg.Ack()
			}
		}
	}()

	slog.Info("face task consumer started", "consumer", consumerName, "batch_size", batchSize)
	return nil
}

// ConsumeEvents starts consuming face events (for API to broadcast via WebSocket).
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	name := streamName(c.eventsBase)
	stream, err := c.js.Stream(ctx, name)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", name, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: c.eventsBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg.Data()); err != nil {
					slog.Error("process face event error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("face event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
