package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

// Route and query parameters that carry bearer material.
var (
	secretRouteParams = []string{"token"}
	secretQueryParams = map[string]struct{}{
		"token": {}, "key": {}, "secret": {}, "password": {}, "code": {}, "state": {},
	}
)

// loggedPath rebuilds the request path with secret route parameters masked.
// Unmatched requests are logged as-is since no parameter was bound.
func loggedPath(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return c.Request.URL.Path
	}
	masked := false
	for _, name := range secretRouteParams {
		if c.Param(name) != "" {
			route = strings.Replace(route, ":"+name, redacted, 1)
			masked = true
		}
	}
	if !masked {
		return c.Request.URL.Path
	}
	return route
}

func loggedQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[UNPARSEABLE]"
	}
	hit := false
	for name, vs := range values {
		if _, ok := secretQueryParams[strings.ToLower(name)]; !ok {
			continue
		}
		for i := range vs {
			vs[i] = redacted
		}
		hit = true
	}
	if !hit {
		return raw
	}
	return values.Encode()
}

// RequestLogger writes one line per request. Guarded requests also carry the
// scope and role the guard resolved.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		if gc := GetGuardContext(c); gc != nil {
			event = event.
				Str("user_id", gc.UserID).
				Str("scope_type", string(gc.Scope.Type)).
				Str("scope_id", gc.Scope.ID.String()).
				Str("role", string(gc.Role))
		} else if user := GetUser(c); user != nil {
			event = event.Str("user_id", user.ID)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			event = event.Strs("errors", errs.Errors())
		}

		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", loggedPath(c)).
			Str("query", loggedQuery(c.Request.URL.RawQuery)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("request")
	}
}
