// Package middleware provides HTTP middleware for the tenancy API.
package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey ContextKey = "user"
	// RequestIDContextKey is the context key for the request correlation id.
	RequestIDContextKey ContextKey = "request_id"
	// GuardContextKey is the context key for the access guard result.
	GuardContextKey ContextKey = "guard"
)

// AuthMiddleware loads the authenticated user, if any, into the Gin context.
// The session cookie is consulted first. When trustedHeader is non-empty, a
// user id in that header (and an email in trustedHeader+"-Email") is accepted
// as set by an authenticating proxy. Requests without a user pass through;
// use RequireAuth to reject them.
func AuthMiddleware(sessions *auth.SessionStore, trustedHeader string, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		if sessions != nil {
			if identity, err := sessions.Identity(c.Request); err == nil {
				c.Set(string(UserContextKey), identity)
				log.Debug().
					Str("user_id", identity.ID).
					Str("path", c.Request.URL.Path).
					Msg("authenticated request")
				c.Next()
				return
			} else if errors.Is(err, auth.ErrIdentityExpired) {
				log.Debug().Str("path", c.Request.URL.Path).Msg("session identity expired")
			}
		}

		if trustedHeader != "" {
			if id := strings.TrimSpace(c.GetHeader(trustedHeader)); id != "" {
				c.Set(string(UserContextKey), &auth.Identity{
					ID:              id,
					Email:           strings.ToLower(strings.TrimSpace(c.GetHeader(trustedHeader + "-Email"))),
					AuthenticatedAt: time.Now(),
				})
				log.Debug().
					Str("user_id", id).
					Str("path", c.Request.URL.Path).
					Msg("authenticated request via identity header")
			}
		}

		c.Next()
	}
}

// RequireAuth rejects requests without an authenticated user.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if RequireUser(c) == nil {
			return
		}
		c.Next()
	}
}

// GetUser retrieves the authenticated user from the Gin context.
// Returns nil if no user is authenticated.
func GetUser(c *gin.Context) *auth.Identity {
	user, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil
	}
	identity, ok := user.(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}

// RequireUser is a helper that gets the authenticated user or aborts with 401.
func RequireUser(c *gin.Context) *auth.Identity {
	user := GetUser(c)
	if user == nil {
		AbortWithError(c, apperr.Unauthenticated("authentication required"))
		return nil
	}
	return user
}
