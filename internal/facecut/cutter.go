package facecut

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
)

const (
	faceExtension   = ".jpg"
	faceContentType = "image/jpeg"
)

var ErrFaceOutOfBounds = errors.New("face box lies outside the photo")

type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.FaceEvent) error
}

// Cutter crops detected faces out of original photos and records them.
type Cutter struct {
	objects      ObjectStore
	sessions     storage.SessionFactory
	events       EventPublisher
	photosBucket string
	facesBucket  string
}

// NewCutter builds a Cutter. events may be nil.
func NewCutter(objects ObjectStore, sessions storage.SessionFactory, events EventPublisher, photosBucket, facesBucket string) *Cutter {
	return &Cutter{
		objects:      objects,
		sessions:     sessions,
		events:       events,
		photosBucket: photosBucket,
		facesBucket:  facesBucket,
	}
}

// ProcessBatch handles one delivery of task messages. Each message is processed
// on its own; a failing message is logged and does not stop the rest.
func (c *Cutter) ProcessBatch(ctx context.Context, bodies [][]byte) (ok, failed int) {
	repo, err := c.sessions.Session(ctx)
	if err != nil {
		slog.Error("open table session", "error", err, "messages", len(bodies))
		observability.TasksProcessed.WithLabelValues("error").Add(float64(len(bodies)))
		return 0, len(bodies)
	}
	defer repo.Release()

	for i, body := range bodies {
		task, err := queue.DecodeTask(body)
		if err == nil {
			_, err = c.process(ctx, repo, task)
		}
		if err != nil {
			failed++
			observability.TasksProcessed.WithLabelValues("error").Inc()
			slog.Error("face task failed", "index", i, "error", err)
			continue
		}
		ok++
		observability.TasksProcessed.WithLabelValues("ok").Inc()
	}

	slog.Info("face task batch processed", "ok", ok, "failed", failed)
	return ok, failed
}

// ProcessTask cuts a single face in its own table session.
func (c *Cutter) ProcessTask(ctx context.Context, task models.FaceTask) (*models.FaceRecord, error) {
	repo, err := c.sessions.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("open table session: %w", err)
	}
	defer repo.Release()
	return c.process(ctx, repo, task)
}

func (c *Cutter) process(ctx context.Context, repo storage.FaceRepository, task models.FaceTask) (*models.FaceRecord, error) {
	start := time.Now()

	box, err := Boundaries(task.Polygon)
	if err != nil {
		return nil, fmt.Errorf("photo %s: %w", task.OriginalPhotoID, err)
	}

	original, err := c.objects.GetObject(ctx, c.photosBucket, task.OriginalPhotoID)
	if err != nil {
		return nil, fmt.Errorf("download original: %w", err)
	}

	crop, err := Crop(original, box)
	if err != nil {
		return nil, fmt.Errorf("photo %s: %w", task.OriginalPhotoID, err)
	}

	rec := &models.FaceRecord{
		ID:              uuid.New(),
		FaceID:          uuid.NewString() + faceExtension,
		OriginalPhotoID: task.OriginalPhotoID,
	}

	if err := c.objects.PutObject(ctx, c.facesBucket, rec.FaceID, crop, faceContentType); err != nil {
		return nil, fmt.Errorf("upload face: %w", err)
	}
	if err := repo.InsertFace(ctx, rec); err != nil {
		return nil, err
	}

	if c.events != nil {
		ev := models.FaceEvent{
			Type:            models.FaceEventCropped,
			FaceID:          rec.FaceID,
			OriginalPhotoID: rec.OriginalPhotoID,
			Timestamp:       time.Now().UTC(),
		}
		if err := c.events.PublishEvent(ctx, ev); err != nil {
			slog.Warn("publish face event", "error", err, "face_id", rec.FaceID)
		}
	}

	observability.StageDuration.WithLabelValues("cut").Observe(time.Since(start).Seconds())
	slog.Debug("face stored", "face_id", rec.FaceID, "photo", rec.OriginalPhotoID, "box", box)
	return rec, nil
}

// Crop decodes a JPEG, PNG or WebP photo and returns the box region as JPEG.
func Crop(photo []byte, box Box) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(photo))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	if box.Rect().Intersect(img.Bounds()).Empty() {
		return nil, ErrFaceOutOfBounds
	}
	if !box.Rect().In(img.Bounds()) {
		slog.Debug("face box clipped to photo bounds", "box", box.Rect(), "bounds", img.Bounds())
	}

	face := imaging.Crop(img, box.Rect())
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, face, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("encode face: %w", err)
	}
	return buf.Bytes(), nil
}
