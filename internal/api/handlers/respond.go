package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/MacJediWizard/tenancy/internal/validate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditRecorder records privileged actions. Recording never fails the request.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// RouteLimits holds the per-action rate limit middleware. Nil entries are skipped.
type RouteLimits struct {
	OrgCreate  gin.HandlerFunc
	TeamCreate gin.HandlerFunc
	Invitation gin.HandlerFunc
	Mutation   gin.HandlerFunc
}

// chain drops nil middleware so optional limits can be spliced into route definitions.
func chain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// respondError writes the error envelope for err. Internal failures are logged
// with their cause; the client only sees a generic message.
func respondError(c *gin.Context, logger zerolog.Logger, err error, msg string) {
	if apperr.KindOf(err) == apperr.KindInternal {
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(c)).
			Str("path", c.FullPath()).
			Msg(msg)
	}
	middleware.AbortWithError(c, err)
}

// bindJSON decodes the request body into req and runs its validation tags.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.KindTooLarge, "request body too large", err)
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return validate.Struct(req)
}

// uuidParam parses the named route parameter.
func uuidParam(c *gin.Context, name, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid " + label + " id")
	}
	return id, nil
}

// storeError maps persistence errors onto API errors.
func storeError(err error, notFound, conflict string) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, db.ErrDuplicate):
		return apperr.Conflict(conflict)
	default:
		return apperr.Internal(err)
	}
}

// auditEntry starts an audit record for the current request.
func auditEntry(c *gin.Context, actorID string, action models.AuditAction, resourceType, resourceID string, scope models.Scope) *models.AuditLog {
	return models.NewAuditLog(actorID, action, resourceType, resourceID).
		WithScope(scope).
		WithRequestInfo(c.ClientIP(), c.Request.UserAgent())
}
