package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studychat/internal/pkg/chat/application/dispatch"
	"studychat/internal/pkg/chat/application/usecase"
	chat "studychat/internal/pkg/chat/domain"
	"studychat/internal/pkg/identity/middleware"
)

// SendMessageController handles the send-message endpoint only (one
// controller per endpoint). It goes through the dispatcher so an HTTP send
// reaches a connected receiver exactly like a socket send would.
type SendMessageController struct {
	D *dispatch.Dispatcher
}

func NewSendMessageController(d *dispatch.Dispatcher) *SendMessageController {
	return &SendMessageController{D: d}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
	Kind       string `json:"kind"`
}

// Handle returns a gin handler that persists and dispatches a direct message
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		sender := middleware.Current(c)
		if sender == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}

		msg, err := h.D.SendMessage(c.Request.Context(), sender.Name, usecase.SendMessageInput{
			SenderID:   sender.ID,
			ReceiverID: req.ReceiverID,
			Content:    req.Content,
			Kind:       chat.MessageKind(req.Kind),
		})
		if err != nil {
			respondDomainError(c, err)
			return
		}

		respondCreated(c, msg)
	}
}
