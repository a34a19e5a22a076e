package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// apiHeaders go on every JSON response. Nothing is cacheable because
// invitation lookups carry bearer tokens in the path.
var apiHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

const (
	hsts = "max-age=31536000; includeSubDomains"

	// The Swagger UI needs its own scripts, inline styles and data: images.
	docsPrefix = "/api/docs"
	docsCSP    = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'"
)

// SecurityHeaders sets response hardening headers. HSTS is only sent when the
// request arrived over TLS, directly or per X-Forwarded-Proto.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range apiHeaders {
			c.Header(h[0], h[1])
		}
		if strings.HasPrefix(c.Request.URL.Path, docsPrefix) {
			c.Header("Content-Security-Policy", docsCSP)
		}
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			c.Header("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
