package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studychat/internal/pkg/chat/application/usecase"
	"studychat/internal/pkg/identity/middleware"
)

// UnreadCountController handles the unread-count endpoint only.
type UnreadCountController struct {
	UC *usecase.UnreadCountUseCase
}

func NewUnreadCountController(uc *usecase.UnreadCountUseCase) *UnreadCountController {
	return &UnreadCountController{UC: uc}
}

// Handle returns a gin handler that reports per-conversation unread counts
// plus the total, for the badge in the client header.
func (h *UnreadCountController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := middleware.Current(c)
		if caller == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		counts, err := h.UC.Execute(ctx, caller.ID)
		if err != nil {
			respondDomainError(c, err)
			return
		}

		total := 0
		for _, n := range counts {
			total += n
		}
		respondOK(c, gin.H{"total": total, "conversations": counts})
	}
}
