package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// PrincipalIDHeader carries the authenticated principal identifier. The
	// identity layer in front of this service owns authentication; the engine
	// trusts the header it forwards.
	PrincipalIDHeader = "X-Principal-ID"
	// PrincipalIDKey is the context key for the acting principal
	PrincipalIDKey = "principal_id"
)

// RequirePrincipal rejects requests without an acting principal header.
// Used on mutating admin endpoints so every policy change has an actor
// recorded in the audit stream.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID := strings.TrimSpace(c.GetHeader(PrincipalIDHeader))
		if principalID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing " + PrincipalIDHeader + " header",
			})
			return
		}

		c.Set(PrincipalIDKey, principalID)
		c.Next()
	}
}

// GetPrincipalID retrieves the acting principal from the context, falling
// back to the forwarded header for routes without the middleware.
func GetPrincipalID(c *gin.Context) (string, bool) {
	if val, exists := c.Get(PrincipalIDKey); exists {
		if id, ok := val.(string); ok && id != "" {
			return id, true
		}
	}
	if id := strings.TrimSpace(c.GetHeader(PrincipalIDHeader)); id != "" {
		return id, true
	}
	return "", false
}
