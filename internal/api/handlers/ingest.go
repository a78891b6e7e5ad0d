package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facebot/internal/ingest"
	"github.com/your-org/facebot/pkg/dto"
)

type EventTrigger interface {
	HandleEvent(ctx context.Context, refs []ingest.ObjectRef) (int, error)
}

type IngestHandler struct {
	trigger       EventTrigger
	defaultBucket string
}

// NewIngestHandler uses defaultBucket for references that name no bucket.
func NewIngestHandler(trigger EventTrigger, defaultBucket string) *IngestHandler {
	return &IngestHandler{trigger: trigger, defaultBucket: defaultBucket}
}

func (h *IngestHandler) StorageEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	refs, err := ingest.ParseStorageEvent(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ingest.ErrNoObjects) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	for i := range refs {
		if refs[i].Bucket == "" {
			refs[i].Bucket = h.defaultBucket
		}
	}

	published, err := h.trigger.HandleEvent(c.Request.Context(), refs)
	if err != nil {
		slog.Error("storage event failed", "objects", len(refs), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.IngestResponse{Objects: len(refs), TasksPublished: published})
}
