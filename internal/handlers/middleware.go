package handlers

import (
	"net/http"
	"strings"

	"roast_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey       = "userId"
	tokenQueryParam = "access_token"

	errMissingAuth = "missing Authorization header"
	errAuthFormat  = "invalid Authorization header format"
	errBadToken    = "invalid or expired token"
)

// userIdMiddleware guards the roast API and the live stream. The token
// comes from the Authorization header; GET requests may pass it as the
// access_token query parameter instead, since browser WebSocket clients
// cannot set headers.
func (h *Handler) userIdMiddleware(c *gin.Context) {
	token, msg := bearerToken(c)
	if msg != "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	userId, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Warnw("auth_rejected", "path", c.Request.URL.Path, "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errBadToken})
		return
	}

	c.Set(userIDKey, userId)
	c.Request = c.Request.WithContext(service.WithUserID(c.Request.Context(), userId))
	c.Next()
}

func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if c.Request.Method == http.MethodGet {
			if token := c.Query(tokenQueryParam); token != "" {
				return token, ""
			}
		}
		return "", errMissingAuth
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", errAuthFormat
	}
	return strings.TrimSpace(parts[1]), ""
}
