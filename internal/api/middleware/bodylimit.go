package middleware

import (
	"fmt"
	"net/http"

	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/gin-gonic/gin"
)

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over the
// limit is rejected with 413 before the handler runs; undeclared bodies are cut
// off while reading and surface as a too_large error from binding.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			AbortWithError(c, apperr.New(apperr.KindTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxBytes)))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
