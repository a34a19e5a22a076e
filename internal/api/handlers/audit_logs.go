package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuditLogStore defines the interface for audit log queries.
type AuditLogStore interface {
	ListAuditLogs(ctx context.Context, scope models.Scope, filter db.AuditLogFilter) ([]*models.AuditLog, error)
	CountAuditLogs(ctx context.Context, scope models.Scope, filter db.AuditLogFilter) (int64, error)
}

// AuditLogsHandler handles audit log HTTP endpoints.
type AuditLogsHandler struct {
	store  AuditLogStore
	authz  middleware.Authorizer
	logger zerolog.Logger
}

// NewAuditLogsHandler creates a new AuditLogsHandler.
func NewAuditLogsHandler(store AuditLogStore, authz middleware.Authorizer, logger zerolog.Logger) *AuditLogsHandler {
	return &AuditLogsHandler{
		store:  store,
		authz:  authz,
		logger: logger.With().Str("component", "audit_logs_handler").Logger(),
	}
}

// RegisterRoutes registers audit log routes on the given router group.
func (h *AuditLogsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/organizations/:id/audit-logs", middleware.RequireOrgRole(h.authz, models.OrgRoleAdmin, h.logger), h.List)
	r.GET("/teams/:team_id/audit-logs", middleware.RequireTeamRole(h.authz, models.TeamRoleLead, h.logger), h.List)
}

// AuditLogListResponse is the response for listing audit logs.
type AuditLogListResponse struct {
	AuditLogs  []*models.AuditLog `json:"audit_logs"`
	TotalCount int64              `json:"total_count"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// List returns the audit trail of the guarded scope, newest first.
// GET /api/v1/organizations/:id/audit-logs
// Query params: action, resource_type, actor_id, start_date, end_date, limit, offset
func (h *AuditLogsHandler) List(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	filter, err := auditFilterFromQuery(c)
	if err != nil {
		respondError(c, h.logger, err, "invalid audit log filter")
		return
	}

	ctx := c.Request.Context()
	logs, err := h.store.ListAuditLogs(ctx, gc.Scope, filter)
	if err != nil {
		respondError(c, h.logger, apperr.Internal(err), "failed to list audit logs")
		return
	}
	total, err := h.store.CountAuditLogs(ctx, gc.Scope, filter)
	if err != nil {
		respondError(c, h.logger, apperr.Internal(err), "failed to count audit logs")
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	page := db.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	middleware.RespondOK(c, http.StatusOK, AuditLogListResponse{
		AuditLogs:  logs,
		TotalCount: total,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
}

func auditFilterFromQuery(c *gin.Context) (db.AuditLogFilter, error) {
	filter := db.AuditLogFilter{
		Action:       c.Query("action"),
		ResourceType: c.Query("resource_type"),
		ActorID:      c.Query("actor_id"),
	}
	if filter.Action != "" && !models.IsValidAuditAction(models.AuditAction(filter.Action)) {
		return filter, apperr.Validation("unknown audit action: " + filter.Action)
	}

	for name, dst := range map[string]**time.Time{"start_date": &filter.StartDate, "end_date": &filter.EndDate} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperr.Validation(name + " must be an RFC 3339 timestamp")
		}
		*dst = &t
	}

	page, err := pageFromQuery(c)
	if err != nil {
		return filter, err
	}
	filter.Limit, filter.Offset = page.Limit, page.Offset
	return filter, nil
}
