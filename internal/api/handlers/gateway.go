package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// GatewayHandler serves stored photos and face crops under public URLs.
type GatewayHandler struct {
	objects      ObjectGetter
	facesBucket  string
	photosBucket string
}

func NewGatewayHandler(objects ObjectGetter, facesBucket, photosBucket string) *GatewayHandler {
	return &GatewayHandler{objects: objects, facesBucket: facesBucket, photosBucket: photosBucket}
}

func (h *GatewayHandler) Face(c *gin.Context) {
	h.serve(c, h.facesBucket)
}

func (h *GatewayHandler) Photo(c *gin.Context) {
	h.serve(c, h.photosBucket)
}

func (h *GatewayHandler) serve(c *gin.Context, bucket string) {
	data, err := h.objects.GetObject(c.Request.Context(), bucket, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
