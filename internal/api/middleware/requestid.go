package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID assigns every request a correlation id, reusing a well-formed
// inbound X-Request-ID and generating one otherwise.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(string(RequestIDContextKey), id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request's correlation id, or "" before RequestID ran.
func GetRequestID(c *gin.Context) string {
	return c.GetString(string(RequestIDContextKey))
}
