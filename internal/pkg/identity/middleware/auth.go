package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"studychat/internal/pkg/identity/port"
)

// ContextKey is where the authenticated identity lives in the gin context.
const ContextKey = "identity"

// RequireAuth validates the bearer credential once per request and stores
// the resolved identity for downstream handlers. Missing or invalid
// credentials are rejected before any handler runs.
func RequireAuth(verifier port.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "authentication token required",
			})
			return
		}

		ident, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
			})
			return
		}

		c.Set(ContextKey, ident)
		c.Next()
	}
}

// Current returns the identity stored by RequireAuth, or nil.
func Current(c *gin.Context) *port.Identity {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil
	}
	ident, _ := v.(*port.Identity)
	return ident
}

// BearerToken strips the "Bearer " prefix from an Authorization header.
// Returns the raw value when the prefix is absent so query-param tokens can
// reuse the same path.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
