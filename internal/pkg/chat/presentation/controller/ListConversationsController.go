package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"studychat/internal/pkg/chat/application/usecase"
	"studychat/internal/pkg/identity/middleware"
)

// ListConversationsController handles the conversation-list endpoint only.
// A q query parameter turns the listing into a name search.
type ListConversationsController struct {
	UC *usecase.ListConversationsUseCase
}

func NewListConversationsController(uc *usecase.ListConversationsUseCase) *ListConversationsController {
	return &ListConversationsController{UC: uc}
}

// Handle returns a gin handler that lists the caller's conversations,
// ordered by most recent activity.
func (h *ListConversationsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := middleware.Current(c)
		if caller == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		list, err := h.UC.Execute(ctx, caller.ID)
		if err != nil {
			respondDomainError(c, err)
			return
		}

		respondOK(c, gin.H{"conversations": toSummaries(list)})
	}
}

// HandleSearch returns a gin handler that filters the caller's
// conversations by the other participant's display name.
func (h *ListConversationsController) HandleSearch() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := middleware.Current(c)
		if caller == nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		term := strings.TrimSpace(c.Query("q"))
		if term == "" {
			respondError(c, http.StatusBadRequest, "q is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		list, err := h.UC.Search(ctx, caller.ID, term)
		if err != nil {
			respondDomainError(c, err)
			return
		}

		respondOK(c, gin.H{"conversations": toSummaries(list)})
	}
}

type conversationSummaryDTO struct {
	ID           string           `json:"id"`
	Participants []participantDTO `json:"participants"`
	LastMessage  any              `json:"last_message,omitempty"`
	LastActivity *time.Time       `json:"last_activity,omitempty"`
	UnreadCount  int              `json:"unread_count"`
}

type participantDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func toSummaries(list []usecase.ConversationSummary) []conversationSummaryDTO {
	out := make([]conversationSummaryDTO, 0, len(list))
	for _, s := range list {
		dto := conversationSummaryDTO{
			ID:           s.Conversation.ID,
			UnreadCount:  s.UnreadCount,
			LastActivity: s.Conversation.LastMessageAt,
		}
		for _, p := range s.Participants {
			dto.Participants = append(dto.Participants, participantDTO{ID: p.ID, Name: p.Name, Avatar: p.Avatar})
		}
		if s.LastMessage != nil {
			dto.LastMessage = s.LastMessage
		}
		out = append(out, dto)
	}
	return out
}
