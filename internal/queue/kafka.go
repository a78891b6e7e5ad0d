package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

// batchLinger bounds how long a partial task batch waits for more messages.
const batchLinger = 500 * time.Millisecond

type KafkaProducer struct {
	brokers []string
	tasks   *kafka.Writer
	events  *kafka.Writer
}

func NewKafkaProducer(cfg config.QueueConfig) (*KafkaProducer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("kafka driver needs at least one broker")
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
	return &KafkaProducer{
		brokers: cfg.KafkaBrokers,
		tasks:   newWriter(cfg.Name),
		events:  newWriter(cfg.EventsName),
	}, nil
}

// EnsureQueues creates the task and event topics through the cluster controller.
func (p *KafkaProducer) EnsureQueues(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get kafka controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer cc.Close()

	for _, topic := range []string{p.tasks.Topic, p.events.Topic} {
		err := cc.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
		if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		slog.Info("ensured kafka topic", "name", topic)
	}
	return nil
}

func (p *KafkaProducer) PublishTask(ctx context.Context, task models.FaceTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal face task: %w", err)
	}
	err = p.tasks.WriteMessages(ctx, kafka.Message{Key: []byte(task.OriginalPhotoID), Value: payload})
	if err != nil {
		return fmt.Errorf("publish face task: %w", err)
	}
	return nil
}

func (p *KafkaProducer) PublishEvent(ctx context.Context, ev models.FaceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal face event: %w", err)
	}
	err = p.events.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Type), Value: payload})
	if err != nil {
		return fmt.Errorf("publish face event: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Ping() error {
	conn, err := kafka.Dial("tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka not reachable: %w", err)
	}
	return conn.Close()
}

func (p *KafkaProducer) Close() {
	if err := p.tasks.Close(); err != nil {
		slog.Warn("close kafka task writer", "error", err)
	}
	if err := p.events.Close(); err != nil {
		slog.Warn("close kafka event writer", "error", err)
	}
}

type KafkaConsumer struct {
	brokers     []string
	tasksTopic  string
	eventsTopic string

	mu      sync.Mutex
	readers []*kafka.Reader
}

func NewKafkaConsumer(cfg config.QueueConfig) (*KafkaConsumer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("kafka driver needs at least one broker")
	}
	return &KafkaConsumer{
		brokers:     cfg.KafkaBrokers,
		tasksTopic:  cfg.Name,
		eventsTopic: cfg.EventsName,
	}, nil
}

func (c *KafkaConsumer) newReader(groupID, topic string, startOffset int64) *kafka.Reader {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     groupID,
		Topic:       topic,
		MaxWait:     time.Second,
		StartOffset: startOffset,
	})
	c.mu.Lock()
	c.readers = append(c.readers, r)
	c.mu.Unlock()
	return r
}

// fetchBatch blocks for the first message, then gathers up to size messages
// arriving within batchLinger.
func fetchBatch(ctx context.Context, r *kafka.Reader, size int) ([]kafka.Message, error) {
	first, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafka.Message{first}

	lingerCtx, cancel := context.WithTimeout(ctx, batchLinger)
	defer cancel()
	for len(msgs) < size {
		msg, err := r.FetchMessage(lingerCtx)
		if err != nil {
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ConsumeTasks reads face-cut tasks in batches; offsets are committed after handler.
func (c *KafkaConsumer) ConsumeTasks(ctx context.Context, consumerName string, batchSize int, handler BatchHandler) error {
	r := c.newReader(consumerName, c.tasksTopic, kafka.FirstOffset)

	go func() {
		for {
			msgs, err := fetchBatch(ctx, r, batchSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch face tasks error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			bodies := make([][]byte, 0, len(msgs))
			for _, m := range msgs {
				bodies = append(bodies, m.Value)
			}
			handler(ctx, bodies)

			if err := r.CommitMessages(ctx, msgs...); err != nil {
				slog.Error("commit face tasks", "error", err, "count", len(msgs))
			}
		}
	}()

	slog.Info("face task consumer started", "consumer", consumerName, "topic", c.tasksTopic, "batch_size", batchSize)
	return nil
}

func (c *KafkaConsumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	r := c.newReader(consumerName, c.eventsTopic, kafka.LastOffset)

	go func() {
		for {
			msg, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}
			if err := handler(ctx, msg.Value); err != nil {
				slog.Error("process face event error", "error", err)
			}
			if err := r.CommitMessages(ctx, msg); err != nil {
				slog.Warn("commit face event", "error", err)
			}
		}
	}()

	slog.Info("face event consumer started", "consumer", consumerName, "topic", c.eventsTopic)
	return nil
}

func (c *KafkaConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			slog.Warn("close kafka reader", "error", err)
		}
	}
	c.readers = nil
}
