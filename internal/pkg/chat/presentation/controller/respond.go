package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	chat "studychat/internal/pkg/chat/domain"
)

// All endpoints answer with the same envelope: {"success": true, "data": ...}
// on the happy path, {"success": false, "error": ...} otherwise.

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// respondDomainError maps the shared error taxonomy onto HTTP statuses.
// Persistence details never leak to clients.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotAuthorized):
		respondError(c, http.StatusForbidden, "not a participant in this conversation")
	case errors.Is(err, chat.ErrNotFound):
		respondError(c, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrPersistence):
		respondError(c, http.StatusInternalServerError, "storage unavailable")
	default:
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}
