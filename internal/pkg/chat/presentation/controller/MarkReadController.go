package controller

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"studychat/internal/pkg/chat/application/dispatch"
	"studychat/internal/pkg/identity/middleware"
)

// MarkReadController handles the mark-conversation-read endpoint only. It
// goes through the dispatcher so the other participant sees the read
// receipt in real time.
type MarkReadController struct {
	D *dispatch.Dispatcher
}

func NewMarkReadController(d *dispatch.Dispatcher) *MarkReadController {
	return &MarkReadController{D: d}
}

// Handle returns a gin handler that marks the caller's unread messages read
func (h *MarkReadController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		reader := middleware.Current(c)
		if reader == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		conversationID := c.Param("conversationId")
		if conversationID == "" {
			respondError(c, http.StatusBadRequest, "conversationId is required")
			return
		}

		res, err := h.D.MarkRead(c.Request.Context(), reader.ID, conversationID)
		if err != nil {
			respondDomainError(c, err)
			return
		}

		respondMessage(c, fmt.Sprintf("%d messages marked as read", res.MessagesUpdated))
	}
}
