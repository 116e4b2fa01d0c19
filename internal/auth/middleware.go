package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/metrics"
)

// AdminKeyHeader carries the shared admin key on destructive requests.
const AdminKeyHeader = "X-Admin-Key"

// KeyMatcher reports whether a presented admin key is the configured one.
type KeyMatcher interface {
	AdminKeyMatches(key string) bool
}

// AdminKey guards admin routes with the shared admin key. This is a guard against
// accidental deletion by attendees, not an authentication layer.
func AdminKey(m KeyMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(AdminKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			return
		}
		if !m.AdminKeyMatches(key) {
			metrics.AdminRejections.Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Incorrect admin key. Please try again."})
			return
		}
		c.Next()
	}
}
