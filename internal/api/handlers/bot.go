package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facebot/internal/bot"
)

type UpdateHandler interface {
	Handle(ctx context.Context, upd *bot.Update) error
}

type BotHandler struct {
	updates UpdateHandler
}

func NewBotHandler(updates UpdateHandler) *BotHandler {
	return &BotHandler{updates: updates}
}

// Webhook receives one Bot API update. A failed update answers 500 so the
// Bot API redelivers it.
func (h *BotHandler) Webhook(c *gin.Context) {
	var upd bot.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.updates.Handle(c.Request.Context(), &upd); err != nil {
		slog.Error("bot update failed", "update_id", upd.UpdateID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	c.Status(http.StatusOK)
}
