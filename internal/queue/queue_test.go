package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

func TestDecodeTask(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    models.FaceTask
		wantErr string
	}{
		{
			name: "valid task",
			body: `{"original_photo_id":"photo-1","face_polygon":[{"x":10,"y":5},{"x":50,"y":5},{"x":50,"y":40},{"x":10,"y":40}]}`,
			want: models.FaceTask{
				OriginalPhotoID: "photo-1",
				Polygon:         models.Polygon{{X: 10, Y: 5}, {X: 50, Y: 5}, {X: 50, Y: 40}, {X: 10, Y: 40}},
			},
		},
		{
			name:    "not json",
			body:    `photo-1`,
			wantErr: "unmarshal face task",
		},
		{
			name:    "missing photo id",
			body:    `{"face_polygon":[]}`,
			wantErr: "without original_photo_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTask([]byte(tt.body))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFaceTask_WireFormat(t *testing.T) {
	data, err := json.Marshal(models.FaceTask{
		OriginalPhotoID: "photo-1",
		Polygon:         models.Polygon{{X: 1, Y: 2}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"original_photo_id":"photo-1","face_polygon":[{"x":1,"y":2}]}`, string(data))
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "FACE_TASKS", streamName("face-tasks"))
	assert.Equal(t, "FACES_EVENTS", streamName("faces.events"))
}

func TestFactories_UnknownDriver(t *testing.T) {
	_, err := NewPublisher(config.QueueConfig{Driver: "sqs"})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	_, err = NewSubscriber(config.QueueConfig{Driver: "sqs"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestKafka_RequiresBrokers(t *testing.T) {
	_, err := NewPublisher(config.QueueConfig{Driver: "kafka"})
	assert.Error(t, err)

	_, err = NewSubscriber(config.QueueConfig{Driver: "kafka"})
	assert.Error(t, err)
}

func TestKafkaProducer_Topics(t *testing.T) {
	p, err := NewKafkaProducer(config.QueueConfig{
		Driver:       "kafka",
		KafkaBrokers: []string{"localhost:9092"},
		Name:         "face-tasks",
		EventsName:   "face-events",
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "face-tasks", p.tasks.Topic)
	assert.Equal(t, "face-events", p.events.Topic)
}
