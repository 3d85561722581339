package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studychat/internal/pkg/chat/application/usecase"
	"studychat/internal/pkg/identity/middleware"
)

// DeleteMessageController handles the delete-message endpoint only. Only
// the sender may delete; anyone else gets a not-found answer.
type DeleteMessageController struct {
	UC *usecase.DeleteMessageUseCase
}

func NewDeleteMessageController(uc *usecase.DeleteMessageUseCase) *DeleteMessageController {
	return &DeleteMessageController{UC: uc}
}

// Handle returns a gin handler that deletes one of the caller's messages
func (h *DeleteMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := middleware.Current(c)
		if caller == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		messageID := c.Param("messageId")
		if messageID == "" {
			respondError(c, http.StatusBadRequest, "messageId is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := h.UC.Execute(ctx, caller.ID, messageID); err != nil {
			respondDomainError(c, err)
			return
		}

		respondMessage(c, "message deleted")
	}
}
