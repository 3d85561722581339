package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"studychat/internal/pkg/chat/application/usecase"
	"studychat/internal/pkg/identity/middleware"
)

const defaultPageSize = 50
const maxPageSize = 200

// GetMessageController handles the conversation-history endpoint only.
type GetMessageController struct {
	UC *usecase.GetMessagesUseCase
}

func NewGetMessageController(uc *usecase.GetMessagesUseCase) *GetMessageController {
	return &GetMessageController{UC: uc}
}

// Handle returns a gin handler that pages a conversation's messages,
// newest first unless order=asc is requested.
func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := middleware.Current(c)
		if requester == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		conversationID := c.Param("conversationId")
		if conversationID == "" {
			respondError(c, http.StatusBadRequest, "conversationId is required")
			return
		}

		limit := intQuery(c, "limit", defaultPageSize)
		if limit > maxPageSize {
			limit = maxPageSize
		}
		offset := intQuery(c, "offset", 0)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, usecase.GetMessagesInput{
			ConversationID: conversationID,
			RequesterID:    requester.ID,
			Limit:          limit,
			Offset:         offset,
			Ascending:      c.Query("order") == "asc",
		})
		if err != nil {
			respondDomainError(c, err)
			return
		}

		respondOK(c, gin.H{"messages": msgs, "limit": limit, "offset": offset})
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
