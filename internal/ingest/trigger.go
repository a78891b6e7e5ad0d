package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
)

type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

type FaceDetector interface {
	Detect(ctx context.Context, image []byte) ([]models.Polygon, error)
}

type TaskPublisher interface {
	PublishTask(ctx context.Context, task models.FaceTask) error
}

// Trigger turns an uploaded photo into one face-cut task per detected face.
type Trigger struct {
	objects   ObjectGetter
	detector  FaceDetector
	publisher TaskPublisher
	maxBytes  int
}

func NewTrigger(objects ObjectGetter, detector FaceDetector, publisher TaskPublisher, maxPhotoBytes int) *Trigger {
	return &Trigger{
		objects:   objects,
		detector:  detector,
		publisher: publisher,
		maxBytes:  maxPhotoBytes,
	}
}

// HandleObject processes a single uploaded photo and returns the number of
// tasks published. Photos above the size limit are skipped without error.
func (t *Trigger) HandleObject(ctx context.Context, bucket, key string) (int, error) {
	start := time.Now()
	log := slog.With("bucket", bucket, "object", key)

	data, err := t.objects.GetObject(ctx, bucket, key)
	if err != nil {
		observability.PhotosIngested.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("download photo: %w", err)
	}

	if t.maxBytes > 0 && len(data) > t.maxBytes {
		log.Warn("photo exceeds size limit, skipping", "size", len(data), "limit", t.maxBytes)
		observability.PhotosIngested.WithLabelValues("too_large").Inc()
		return 0, nil
	}

	polygons, err := t.detector.Detect(ctx, data)
	if err != nil {
		observability.PhotosIngested.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("detect faces: %w", err)
	}
	observability.FacesDetected.Add(float64(len(polygons)))

	published := 0
	for _, poly := range polygons {
		task := models.FaceTask{OriginalPhotoID: key, Polygon: poly}
		if err := t.publisher.PublishTask(ctx, task); err != nil {
			observability.PhotosIngested.WithLabelValues("error").Inc()
			return published, fmt.Errorf("publish face task %d of %d: %w", published+1, len(polygons), err)
		}
		published++
		observability.TasksPublished.Inc()
	}

	observability.PhotosIngested.WithLabelValues("ok").Inc()
	observability.StageDuration.WithLabelValues("ingest").Observe(time.Since(start).Seconds())
	log.Info("photo ingested", "faces", published, "duration", time.Since(start).String())
	return published, nil
}

// HandleEvent runs HandleObject for every reference in order and stops at the
// first failure.
func (t *Trigger) HandleEvent(ctx context.Context, refs []ObjectRef) (int, error) {
	total := 0
	for _, ref := range refs {
		n, err := t.HandleObject(ctx, ref.Bucket, ref.Key)
		total += n
		if err != nil {
			return total, fmt.Errorf("object %s/%s: %w", ref.Bucket, ref.Key, err)
		}
	}
	return total, nil
}
