package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const subscriberKey = "subscriber_id"

// Subscriber reads the caller identity set by the upstream auth layer. A
// missing identity is rejected unless anonymous registration is allowed.
func Subscriber(header string, allowAnonymous bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(header))
		if id == "" {
			if !allowAnonymous {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "subscriber identity required"})
				return
			}
			c.Next()
			return
		}
		c.Set(subscriberKey, id)
		c.Next()
	}
}

// SubscriberID returns the caller identity, or nil for an anonymous caller.
func SubscriberID(c *gin.Context) *string {
	id := c.GetString(subscriberKey)
	if id == "" {
		return nil
	}
	return &id
}
