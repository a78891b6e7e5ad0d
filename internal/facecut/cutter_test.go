package facecut

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/storage"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	d, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return d, nil
}

func (m *memObjects) PutObject(_ context.Context, bucket, key string, data []byte, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[bucket+"/"+key] = data
	m.types[bucket+"/"+key] = contentType
	return nil
}

type memRepo struct {
	storage.FaceRepository
	rows      []models.FaceRecord
	insertErr error
	released  int
}

func (r *memRepo) InsertFace(_ context.Context, rec *models.FaceRecord) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.rows = append(r.rows, *rec)
	return nil
}

func (r *memRepo) Release() { r.released++ }

type memSessions struct {
	repo     *memRepo
	err      error
	sessions int
}

func (s *memSessions) Session(context.Context) (storage.FaceRepository, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sessions++
	return s.repo, nil
}

type recordedEvents struct {
	events []models.FaceEvent
	err    error
}

func (r *recordedEvents) PublishEvent(_ context.Context, ev models.FaceEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 120, B: 80, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

const taskBody = `{"original_photo_id":"img-1.jpg","face_polygon":[{"x":10,"y":20},{"x":10,"y":80},{"x":60,"y":80},{"x":60,"y":20}]}`

func newTestCutter(t *testing.T) (*Cutter, *memObjects, *memRepo, *recordedEvents) {
	t.Helper()
	objects := newMemObjects()
	objects.objects["photos/img-1.jpg"] = testJPEG(t, 200, 100)
	repo := &memRepo{}
	events := &recordedEvents{}
	return NewCutter(objects, &memSessions{repo: repo}, events, "photos", "faces"), objects, repo, events
}

func TestCrop(t *testing.T) {
	out, err := Crop(testJPEG(t, 200, 100), Box{Left: 10, Top: 20, Right: 60, Bottom: 80})
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 60, cfg.Height)
}

func TestCrop_ClipsBoxAtPhotoEdge(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	out, err := Crop(testJPEG(t, 200, 100), Box{Left: 150, Top: 50, Right: 250, Bottom: 120})
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
	assert.Contains(t, logs.String(), "face box clipped to photo bounds")
}

func TestCrop_InsideBoundsDoesNotLogClipping(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err := Crop(testJPEG(t, 200, 100), Box{Left: 10, Top: 20, Right: 60, Bottom: 80})
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "clipped")
}

func TestCrop_Errors(t *testing.T) {
	_, err := Crop([]byte("not an image"), Box{Right: 1, Bottom: 1})
	assert.ErrorContains(t, err, "decode photo")

	_, err = Crop(testJPEG(t, 20, 20), Box{Left: 100, Top: 100, Right: 150, Bottom: 150})
	assert.ErrorIs(t, err, ErrFaceOutOfBounds)
}

func TestCutter_ProcessBatch(t *testing.T) {
	c, objects, repo, events := newTestCutter(t)

	ok, failed := c.ProcessBatch(context.Background(), [][]byte{[]byte(taskBody)})
	assert.Equal(t, 1, ok)
	assert.Zero(t, failed)

	require.Len(t, repo.rows, 1)
	rec := repo.rows[0]
	assert.Equal(t, "img-1.jpg", rec.OriginalPhotoID)
	assert.True(t, strings.HasSuffix(rec.FaceID, ".jpg"))
	assert.Nil(t, rec.PersonName)
	assert.Contains(t, objects.objects, "faces/"+rec.FaceID)
	assert.Equal(t, "image/jpeg", objects.types["faces/"+rec.FaceID])
	assert.Equal(t, 1, repo.released)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.FaceEventCropped, events.events[0].Type)
	assert.Equal(t, rec.FaceID, events.events[0].FaceID)
}

func TestCutter_ProcessBatch_IsolatesFailures(t *testing.T) {
	c, _, repo, _ := newTestCutter(t)

	bodies := [][]byte{
		[]byte(taskBody),
		[]byte(`{"original_photo_id":"missing.jpg","face_polygon":[{"x":1,"y":1},{"x":5,"y":5}]}`),
		[]byte(`garbage`),
		[]byte(`{"original_photo_id":"img-1.jpg","face_polygon":[{"x":1,"y":1}]}`),
		[]byte(taskBody),
	}
	ok, failed := c.ProcessBatch(context.Background(), bodies)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, failed)
	assert.Len(t, repo.rows, 2)
}

func TestCutter_Redelivery_CreatesSecondRecord(t *testing.T) {
	c, _, repo, _ := newTestCutter(t)

	c.ProcessBatch(context.Background(), [][]byte{[]byte(taskBody)})
	c.ProcessBatch(context.Background(), [][]byte{[]byte(taskBody)})

	require.Len(t, repo.rows, 2)
	assert.NotEqual(t, repo.rows[0].FaceID, repo.rows[1].FaceID)
	assert.NotEqual(t, repo.rows[0].ID, repo.rows[1].ID)
	assert.Equal(t, repo.rows[0].OriginalPhotoID, repo.rows[1].OriginalPhotoID)
}

func TestCutter_SessionUnavailable(t *testing.T) {
	c := NewCutter(newMemObjects(), &memSessions{err: errors.New("timeout")}, nil, "photos", "faces")

	ok, failed := c.ProcessBatch(context.Background(), [][]byte{[]byte(taskBody), []byte(taskBody)})
	assert.Zero(t, ok)
	assert.Equal(t, 2, failed)
}

func TestCutter_ProcessTask(t *testing.T) {
	t.Run("upload failure leaves no record", func(t *testing.T) {
		c, objects, repo, _ := newTestCutter(t)
		objects.putErr = errors.New("bucket full")

		_, err := c.ProcessTask(context.Background(), models.FaceTask{
			OriginalPhotoID: "img-1.jpg",
			Polygon:         models.Polygon{{X: 10, Y: 20}, {X: 60, Y: 80}},
		})
		assert.ErrorContains(t, err, "upload face")
		assert.Empty(t, repo.rows)
	})

	t.Run("event failure does not fail the task", func(t *testing.T) {
		c, _, repo, events := newTestCutter(t)
		events.err = errors.New("nats down")

		rec, err := c.ProcessTask(context.Background(), models.FaceTask{
			OriginalPhotoID: "img-1.jpg",
			Polygon:         models.Polygon{{X: 10, Y: 20}, {X: 60, Y: 80}},
		})
		require.NoError(t, err)
		assert.Equal(t, "img-1.jpg", rec.OriginalPhotoID)
		assert.Len(t, repo.rows, 1)
		assert.Equal(t, 1, repo.released)
	})

	t.Run("insert failure", func(t *testing.T) {
		c, _, repo, _ := newTestCutter(t)
		repo.insertErr = errors.New("constraint")

		_, err := c.ProcessTask(context.Background(), models.FaceTask{
			OriginalPhotoID: "img-1.jpg",
			Polygon:         models.Polygon{{X: 10, Y: 20}, {X: 60, Y: 80}},
		})
		assert.ErrorContains(t, err, "constraint")
	})
}
