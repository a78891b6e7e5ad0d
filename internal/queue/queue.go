package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

var ErrUnknownDriver = errors.New("unknown queue driver")

// Publisher sends face-cut tasks and face events.
type Publisher interface {
	EnsureQueues(ctx context.Context) error
	PublishTask(ctx context.Context, task models.FaceTask) error
	PublishEvent(ctx context.Context, ev models.FaceEvent) error
	Ping() error
	Close()
}

// BatchHandler receives the raw bodies of one delivered batch. Every message of
// the batch is acknowledged once the handler returns, whatever happened inside.
type BatchHandler func(ctx context.Context, batch [][]byte)

// MessageHandler processes one message; a non-nil error is logged.
type MessageHandler func(ctx context.Context, data []byte) error

// Subscriber delivers tasks in batches and events one by one.
type Subscriber interface {
	ConsumeTasks(ctx context.Context, consumerName string, batchSize int, handler BatchHandler) error
	ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error
	Close()
}

// DepthReporter is implemented by drivers that can report pending tasks.
type DepthReporter interface {
	QueueDepth(ctx context.Context) (uint64, error)
}

func NewPublisher(cfg config.QueueConfig) (Publisher, error) {
	switch cfg.Driver {
	case "nats":
		p, err := NewProducer(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "kafka":
		p, err := NewKafkaProducer(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

func NewSubscriber(cfg config.QueueConfig) (Subscriber, error) {
	switch cfg.Driver {
	case "nats":
		c, err := NewConsumer(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "kafka":
		c, err := NewKafkaConsumer(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

// DecodeTask unwraps one queue body into a FaceTask.
func DecodeTask(data []byte) (models.FaceTask, error) {
	var task models.FaceTask
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("unmarshal face task: %w", err)
	}
	if task.OriginalPhotoID == "" {
		return task, errors.New("face task without original_photo_id")
	}
	return task, nil
}

// streamName turns a queue name like "face-tasks" into a JetStream stream name.
func streamName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}
