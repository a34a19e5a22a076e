package middleware

import (
	"net/http"
	"strings"

	"github.com/MacJediWizard/tenancy/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Allow-Headers":     "Content-Type, Authorization, X-Requested-With, " + RequestIDHeader + ", X-Tenant-Org-ID, X-Tenant-Team-ID",
	"Access-Control-Expose-Headers":    RequestIDHeader + ", Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining",
	"Access-Control-Allow-Methods":     "GET, POST, PUT, DELETE, OPTIONS",
	"Access-Control-Max-Age":           "86400",
}

// originMatcher holds exact origins and "scheme://*.domain" wildcards.
type originMatcher struct {
	any       bool
	exact     map[string]struct{}
	wildcards []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string // "https://"
	suffix string // ".example.com"
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{any: len(origins) == 0, exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
		if scheme, host, ok := strings.Cut(o, "://*."); ok {
			m.wildcards = append(m.wildcards, wildcardOrigin{scheme: scheme + "://", suffix: "." + host})
			continue
		}
		m.exact[o] = struct{}{}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if m.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.wildcards {
		host, ok := strings.CutPrefix(origin, w.scheme)
		if ok && len(host) > len(w.suffix) && strings.HasSuffix(host, w.suffix) {
			return true
		}
	}
	return false
}

// CORS echoes allowed origins with credentials enabled and answers every
// preflight with 204. An empty allow list admits any origin, which is refused
// in production with a panic at startup.
func CORS(allowedOrigins []string, env config.Environment, logger zerolog.Logger) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		if env == config.EnvProduction {
			panic("CORS_ORIGINS must be set in production; refusing to start with open CORS policy")
		}
		logger.Warn().Msg("CORS_ORIGINS is empty, all origins are allowed (not suitable for production)")
	}
	origins := newOriginMatcher(allowedOrigins)

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origins.allows(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			for k, v := range corsHeaders {
				c.Header(k, v)
			}
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
