package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxTeamDepth bounds the parent chain walked when checking for cycles.
const maxTeamDepth = 32

// TeamStore defines the interface for team persistence operations.
type TeamStore interface {
	CreateTeam(ctx context.Context, team *models.Team, lead *models.Membership) error
	GetTeamByID(ctx context.Context, id uuid.UUID) (*models.Team, error)
	ListTeamsByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Team, error)
	UpdateTeam(ctx context.Context, team *models.Team) error
	DeleteTeam(ctx context.Context, id uuid.UUID) error
}

// TeamsHandler handles team HTTP endpoints for organization teams and standalone teams.
type TeamsHandler struct {
	store  TeamStore
	authz  middleware.Authorizer
	audit  AuditRecorder
	logger zerolog.Logger
}

// NewTeamsHandler creates a new TeamsHandler.
func NewTeamsHandler(store TeamStore, authz middleware.Authorizer, recorder AuditRecorder, logger zerolog.Logger) *TeamsHandler {
	return &TeamsHandler{
		store:  store,
		authz:  authz,
		audit:  recorder,
		logger: logger.With().Str("component", "teams_handler").Logger(),
	}
}

// RegisterRoutes registers team routes on the given router group.
func (h *TeamsHandler) RegisterRoutes(r *gin.RouterGroup, limits RouteLimits) {
	orgTeams := r.Group("/organizations/:id/teams")
	{
		orgTeams.GET("", middleware.RequireOrgRole(h.authz, models.OrgRoleMember, h.logger), h.ListForOrganization)
		orgTeams.POST("", chain(limits.TeamCreate, middleware.RequireOrgRole(h.authz, models.OrgRoleAdmin, h.logger), h.CreateInOrganization)...)
	}

	teams := r.Group("/teams")
	{
		teams.POST("", chain(middleware.RequireAuth(), limits.TeamCreate, h.CreateStandalone)...)
		teams.GET("/:team_id", middleware.RequireTeamRole(h.authz, models.TeamRoleMember, h.logger), h.Get)
		teams.PUT("/:team_id", chain(limits.Mutation, middleware.RequireTeamRole(h.authz, models.TeamRoleLead, h.logger), h.Update)...)
		teams.DELETE("/:team_id", chain(limits.Mutation, middleware.RequireTeamRole(h.authz, models.TeamRoleLead, h.logger), h.Delete)...)
	}
}

// CreateTeamRequest is the request body for creating a team.
type CreateTeamRequest struct {
	Name         string     `json:"name" validate:"required,min=1,max=255"`
	Slug         string     `json:"slug" validate:"required,max=63,slug"`
	Description  string     `json:"description" validate:"max=1000"`
	ParentTeamID *uuid.UUID `json:"parent_team_id"`
}

// UpdateTeamRequest is the request body for updating a team.
// Omitted fields are left unchanged; set clear_parent to detach the team from its parent.
type UpdateTeamRequest struct {
	Name         *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Slug         *string    `json:"slug" validate:"omitempty,max=63,slug"`
	Description  *string    `json:"description" validate:"omitempty,max=1000"`
	ParentTeamID *uuid.UUID `json:"parent_team_id"`
	ClearParent  bool       `json:"clear_parent"`
}

// TeamResponse is the response for single team endpoints.
type TeamResponse struct {
	Team *models.Team `json:"team"`
	Role models.Role  `json:"role,omitempty"`
}

// ListForOrganization returns the teams of an organization.
// GET /api/v1/organizations/:id/teams
func (h *TeamsHandler) ListForOrganization(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	teams, err := h.store.ListTeamsByOrganization(c.Request.Context(), gc.Scope.ID)
	if err != nil {
		respondError(c, h.logger, apperr.Internal(err), "failed to list teams")
		return
	}
	if teams == nil {
		teams = []*models.Team{}
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{"teams": teams})
}

// CreateInOrganization creates a team inside the organization. The creator becomes its lead.
// POST /api/v1/organizations/:id/teams
func (h *TeamsHandler) CreateInOrganization(c *gin.Context) {
	gc := middleware.GetGuardContext(c)
	orgID := gc.Scope.ID
	h.create(c, gc.UserID, gc.Email, &orgID)
}

// CreateStandalone creates a team that belongs to no organization. The creator becomes its lead.
// POST /api/v1/teams
func (h *TeamsHandler) CreateStandalone(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	h.create(c, user.ID, user.Email, nil)
}

func (h *TeamsHandler) create(c *gin.Context, userID, email string, orgID *uuid.UUID) {
	var req CreateTeamRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid create team request")
		return
	}

	team := models.NewTeam(orgID, req.Name, req.Slug)
	team.Description = req.Description

	if req.ParentTeamID != nil {
		if err := h.checkParent(c.Request.Context(), userID, team, *req.ParentTeamID); err != nil {
			respondError(c, h.logger, err, "failed to check parent team")
			return
		}
		team.ParentTeamID = req.ParentTeamID
	}

	scope := models.NewTeamScope(team.ID)
	lead := models.NewMembership(userID, email, scope, models.TeamRoleLead, nil)

	if err := h.store.CreateTeam(c.Request.Context(), team, lead); err != nil {
		respondError(c, h.logger, storeError(err, "parent team not found", "team slug already in use"), "failed to create team")
		return
	}

	md := map[string]any{"name": team.Name, "slug": team.Slug}
	if orgID != nil {
		md["organization_id"] = orgID.String()
	}
	h.audit.Record(c.Request.Context(), auditEntry(c, userID, models.AuditActionTeamCreated,
		"team", team.ID.String(), scope).WithMetadata(md))

	h.logger.Info().
		Str("team_id", team.ID.String()).
		Bool("standalone", team.IsStandalone()).
		Str("lead_id", userID).
		Msg("team created")

	middleware.RespondOK(c, http.StatusCreated, TeamResponse{Team: team, Role: models.TeamRoleLead})
}

// checkParent verifies that parentID names a team of the same tenant as team that
// the caller may attach to, and that attaching it creates no cycle.
func (h *TeamsHandler) checkParent(ctx context.Context, userID string, team *models.Team, parentID uuid.UUID) error {
	if parentID == team.ID {
		return apperr.Validation("a team cannot be its own parent")
	}

	parent, err := h.store.GetTeamByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.Validation("parent team not found")
		}
		return apperr.Internal(err)
	}
	if !team.SameTenant(parent) {
		return apperr.Validation("parent team must belong to the same organization")
	}

	// The caller must lead the parent too. Organization admins qualify
	// through their inherited lead role.
	if _, err := h.authz.Authorize(ctx, userID, models.NewTeamScope(parent.ID), models.TeamRoleLead); err != nil {
		if auth.IsAccessDenied(err) {
			return apperr.Validation("parent team not found")
		}
		return apperr.Internal(err)
	}

	cur := parent
	for depth := 0; cur.ParentTeamID != nil; depth++ {
		if *cur.ParentTeamID == team.ID || depth >= maxTeamDepth {
			return apperr.Validation("parent team would create a cycle")
		}
		next, err := h.store.GetTeamByID(ctx, *cur.ParentTeamID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				break
			}
			return apperr.Internal(err)
		}
		cur = next
	}
	return nil
}

// Get returns a team the caller belongs to, directly or as an organization admin.
// GET /api/v1/teams/:team_id
func (h *TeamsHandler) Get(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	team, err := h.store.GetTeamByID(c.Request.Context(), gc.Scope.ID)
	if err != nil {
		respondError(c, h.logger, storeError(err, "team not found", ""), "failed to get team")
		return
	}

	middleware.RespondOK(c, http.StatusOK, TeamResponse{Team: team, Role: gc.Role})
}

// Update changes a team's name, slug, description or parent.
// PUT /api/v1/teams/:team_id
func (h *TeamsHandler) Update(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	var req UpdateTeamRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid update team request")
		return
	}
	if req.ClearParent && req.ParentTeamID != nil {
		respondError(c, h.logger, apperr.Validation("parent_team_id and clear_parent are mutually exclusive"), "invalid update team request")
		return
	}

	ctx := c.Request.Context()
	team, err := h.store.GetTeamByID(ctx, gc.Scope.ID)
	if err != nil {
		respondError(c, h.logger, storeError(err, "team not found", ""), "failed to get team")
		return
	}

	changed := map[string]any{}
	if req.Name != nil && *req.Name != team.Name {
		team.Name = *req.Name
		changed["name"] = team.Name
	}
	if req.Slug != nil && *req.Slug != team.Slug {
		team.Slug = *req.Slug
		changed["slug"] = team.Slug
	}
	if req.Description != nil && *req.Description != team.Description {
		team.Description = *req.Description
		changed["description"] = team.Description
	}
	if req.ParentTeamID != nil && (team.ParentTeamID == nil || *team.ParentTeamID != *req.ParentTeamID) {
		if err := h.checkParent(ctx, gc.UserID, team, *req.ParentTeamID); err != nil {
			respondError(c, h.logger, err, "failed to check parent team")
			return
		}
		team.ParentTeamID = req.ParentTeamID
		changed["parent_team_id"] = req.ParentTeamID.String()
	}
	if req.ClearParent && team.ParentTeamID != nil {
		team.ParentTeamID = nil
		changed["parent_team_id"] = nil
	}

	if len(changed) > 0 {
		if err := h.store.UpdateTeam(ctx, team); err != nil {
			respondError(c, h.logger, storeError(err, "team not found", "team slug already in use"), "failed to update team")
			return
		}
		h.audit.Record(ctx, auditEntry(c, gc.UserID, models.AuditActionTeamUpdated,
			"team", team.ID.String(), gc.Scope).WithMetadata(changed))
	}

	middleware.RespondOK(c, http.StatusOK, TeamResponse{Team: team, Role: gc.Role})
}

// Delete removes a team with its memberships and invitations.
// DELETE /api/v1/teams/:team_id
func (h *TeamsHandler) Delete(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	if err := h.store.DeleteTeam(c.Request.Context(), gc.Scope.ID); err != nil {
		respondError(c, h.logger, storeError(err, "team not found", ""), "failed to delete team")
		return
	}

	h.audit.Record(c.Request.Context(), auditEntry(c, gc.UserID, models.AuditActionTeamDeleted,
		"team", gc.Scope.ID.String(), gc.Scope).WithMetadata(map[string]any{"inherited_role": gc.Inherited}))

	middleware.RespondOK(c, http.StatusOK, gin.H{"message": "team deleted"})
}
