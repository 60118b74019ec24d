package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// UserHeader carries the authenticated user id set by the fronting gateway.
	UserHeader = "X-User-ID"
	userKey    = "user_id"
)

// Owner rejects requests without a numeric user id and stores it for handlers.
func Owner() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.GetHeader(UserHeader), 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + UserHeader})
			return
		}
		c.Set(userKey, uint32(id))
		c.Next()
	}
}

// UserID returns the id stored by Owner, or 0.
func UserID(c *gin.Context) uint32 {
	if v, ok := c.Get(userKey); ok {
		if id, ok := v.(uint32); ok {
			return id
		}
	}
	return 0
}
