package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facebot/internal/bot"
	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/storage"
	"github.com/your-org/facebot/pkg/dto"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.FaceEvent) error
}

// FaceHandler exposes the labeling flow over HTTP.
type FaceHandler struct {
	sessions   storage.SessionFactory
	events     EventPublisher
	gatewayURL string
}

// NewFaceHandler builds a FaceHandler. events may be nil.
func NewFaceHandler(sessions storage.SessionFactory, events EventPublisher, gatewayURL string) *FaceHandler {
	return &FaceHandler{sessions: sessions, events: events, gatewayURL: gatewayURL}
}

func (h *FaceHandler) faceResponse(f *models.FaceRecord) dto.FaceResponse {
	return dto.FaceResponse{
		ID:              f.ID,
		FaceID:          f.FaceID,
		OriginalPhotoID: f.OriginalPhotoID,
		PersonName:      f.PersonName,
		FaceURL:         bot.PhotoURL(h.gatewayURL, "face", f.FaceID),
	}
}

func (h *FaceHandler) session(c *gin.Context) (storage.FaceRepository, bool) {
	repo, err := h.sessions.Session(c.Request.Context())
	if err != nil {
		slog.Error("open table session", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "table store unavailable"})
		return nil, false
	}
	return repo, true
}

func (h *FaceHandler) Unnamed(c *gin.Context) {
	repo, ok := h.session(c)
	if !ok {
		return
	}
	defer repo.Release()

	face, err := repo.FirstUnnamedFace(c.Request.Context())
	if errors.Is(err, storage.ErrFaceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "all faces are identified"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.faceResponse(face))
}

func (h *FaceHandler) PersonPhotos(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "person name required"})
		return
	}

	repo, ok := h.session(c)
	if !ok {
		return
	}
	defer repo.Release()

	photos, err := repo.FindPhotosByPerson(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.PersonPhotosResponse{PersonName: name, Photos: make([]dto.PersonPhotoResponse, 0, len(photos))}
	for _, p := range photos {
		resp.Photos = append(resp.Photos, dto.PersonPhotoResponse{
			OriginalPhotoID: p.OriginalPhotoID,
			PhotoURL:        bot.PhotoURL(h.gatewayURL, "photo", p.OriginalPhotoID),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FaceHandler) Label(c *gin.Context) {
	var req dto.LabelFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.PersonName)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "person_name must not be blank"})
		return
	}

	repo, ok := h.session(c)
	if !ok {
		return
	}
	defer repo.Release()

	ctx := c.Request.Context()
	face, err := repo.FaceByFaceID(ctx, c.Param("faceId"))
	if errors.Is(err, storage.ErrFaceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := repo.SetPersonName(ctx, face.FaceID, name, face.OriginalPhotoID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrFaceNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	face.PersonName = &name

	if h.events != nil {
		ev := models.FaceEvent{
			Type:            models.FaceEventLabeled,
			FaceID:          face.FaceID,
			OriginalPhotoID: face.OriginalPhotoID,
			PersonName:      name,
			Timestamp:       time.Now().UTC(),
		}
		if err := h.events.PublishEvent(ctx, ev); err != nil {
			slog.Warn("publish face event", "error", err, "face_id", face.FaceID)
		}
	}

	c.JSON(http.StatusOK, h.faceResponse(face))
}
