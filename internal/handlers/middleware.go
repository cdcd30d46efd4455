package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ingestTokenHeader = "X-Ingest-Token"

func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	userId, err := h.services.ParseToken(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set("userId", userId)
	c.Next()
}

// ingestTokenMiddleware guards the sensor push endpoint with a shared token.
// Without a configured token the endpoint is disabled.
func (h *Handler) ingestTokenMiddleware(c *gin.Context) {
	if h.ingestToken == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "ingest endpoint disabled",
		})
		return
	}
	got := c.GetHeader(ingestTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.ingestToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid ingest token",
		})
		return
	}
	c.Next()
}
