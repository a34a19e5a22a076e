package handlers

import (
	"context"
	"net/http"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemberStore defines the membership operations used by the members endpoints.
type MemberStore interface {
	ListScopeMembers(ctx context.Context, scope models.Scope) ([]*models.Membership, error)
	GetMembershipByID(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	UpdateMembership(ctx context.Context, m *models.Membership) error
	DeactivateMembership(ctx context.Context, id uuid.UUID) error
	CountActiveOwners(ctx context.Context, orgID uuid.UUID) (int, error)
}

// MembersHandler lists and manages the members of organizations and teams.
type MembersHandler struct {
	store  MemberStore
	authz  middleware.Authorizer
	audit  AuditRecorder
	logger zerolog.Logger
}

// NewMembersHandler creates a new MembersHandler.
func NewMembersHandler(store MemberStore, authz middleware.Authorizer, recorder AuditRecorder, logger zerolog.Logger) *MembersHandler {
	return &MembersHandler{
		store:  store,
		authz:  authz,
		audit:  recorder,
		logger: logger.With().Str("component", "members_handler").Logger(),
	}
}

// RegisterRoutes registers member routes on the given router group.
func (h *MembersHandler) RegisterRoutes(r *gin.RouterGroup, limits RouteLimits) {
	orgMembers := r.Group("/organizations/:id/members")
	{
		orgMembers.GET("", middleware.RequireOrgRole(h.authz, models.OrgRoleMember, h.logger), h.List)
		orgMembers.PUT("/:membership_id", chain(limits.Mutation, middleware.RequireOrgRole(h.authz, models.OrgRoleAdmin, h.logger), h.UpdateRole)...)
		orgMembers.DELETE("/:membership_id", chain(limits.Mutation, middleware.RequireOrgRole(h.authz, models.OrgRoleAdmin, h.logger), h.Remove)...)
	}

	teamMembers := r.Group("/teams/:team_id/members")
	{
		teamMembers.GET("", middleware.RequireTeamRole(h.authz, models.TeamRoleMember, h.logger), h.List)
		teamMembers.PUT("/:membership_id", chain(limits.Mutation, middleware.RequireTeamRole(h.authz, models.TeamRoleLead, h.logger), h.UpdateRole)...)
		teamMembers.DELETE("/:membership_id", chain(limits.Mutation, middleware.RequireTeamRole(h.authz, models.TeamRoleLead, h.logger), h.Remove)...)
	}
}

// UpdateMemberRequest is the request body for changing a member's role.
type UpdateMemberRequest struct {
	Role models.Role `json:"role" validate:"required"`
}

// List returns the active members of the guarded scope.
// GET /api/v1/organizations/:id/members
// GET /api/v1/teams/:team_id/members
func (h *MembersHandler) List(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	members, err := h.store.ListScopeMembers(c.Request.Context(), gc.Scope)
	if err != nil {
		respondError(c, h.logger, apperr.Internal(err), "failed to list members")
		return
	}
	if members == nil {
		members = []*models.Membership{}
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{"members": members})
}

// UpdateRole changes the role of a member. Admins manage members only; owners
// manage everyone. The last owner of an organization cannot be demoted.
func (h *MembersHandler) UpdateRole(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	var req UpdateMemberRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid update member request")
		return
	}
	if !auth.IsValidRole(gc.Scope.Type, req.Role) {
		respondError(c, h.logger, apperr.Validation("invalid role for "+string(gc.Scope.Type)), "invalid update member request")
		return
	}

	ctx := c.Request.Context()
	target, err := h.loadTarget(c, gc)
	if err != nil {
		respondError(c, h.logger, err, "failed to get membership")
		return
	}
	if target.Role == req.Role {
		middleware.RespondOK(c, http.StatusOK, gin.H{"member": target})
		return
	}

	if !auth.CanManageMember(gc.Scope.Type, gc.Role, target.Role) || !auth.CanAssignRole(gc.Scope.Type, gc.Role, req.Role) {
		h.logger.Debug().
			Str("request_id", middleware.GetRequestID(c)).
			Str("actor_role", string(gc.Role)).
			Str("target_role", string(target.Role)).
			Str("new_role", string(req.Role)).
			Msg("role change refused")
		respondError(c, h.logger, apperr.NotFound("member not found"), "role change refused")
		return
	}

	if target.IsOwner() {
		if err := h.ensureAnotherOwner(ctx, *target.OrganizationID); err != nil {
			respondError(c, h.logger, err, "failed to count owners")
			return
		}
	}

	oldRole := target.Role
	target.Role = req.Role
	if err := h.store.UpdateMembership(ctx, target); err != nil {
		respondError(c, h.logger, storeError(err, "member not found", ""), "failed to update membership")
		return
	}

	h.audit.Record(ctx, auditEntry(c, gc.UserID, models.AuditActionMemberRoleUpdated,
		"membership", target.ID.String(), gc.Scope).
		WithMetadata(map[string]any{"user_id": target.UserID, "old_role": oldRole, "new_role": req.Role}))

	middleware.RespondOK(c, http.StatusOK, gin.H{"member": target})
}

// Remove deactivates a membership. The last owner of an organization cannot be removed.
func (h *MembersHandler) Remove(c *gin.Context) {
	gc := middleware.GetGuardContext(c)
	ctx := c.Request.Context()

	target, err := h.loadTarget(c, gc)
	if err != nil {
		respondError(c, h.logger, err, "failed to get membership")
		return
	}

	if target.UserID != gc.UserID && !auth.CanManageMember(gc.Scope.Type, gc.Role, target.Role) {
		respondError(c, h.logger, apperr.NotFound("member not found"), "member removal refused")
		return
	}
	if target.IsOwner() {
		if err := h.ensureAnotherOwner(ctx, *target.OrganizationID); err != nil {
			respondError(c, h.logger, err, "failed to count owners")
			return
		}
	}

	if err := h.store.DeactivateMembership(ctx, target.ID); err != nil {
		respondError(c, h.logger, storeError(err, "member not found", ""), "failed to remove member")
		return
	}

	h.audit.Record(ctx, auditEntry(c, gc.UserID, models.AuditActionMemberRemoved,
		"membership", target.ID.String(), gc.Scope).
		WithMetadata(map[string]any{"user_id": target.UserID, "role": target.Role}))

	middleware.RespondOK(c, http.StatusOK, gin.H{"message": "member removed"})
}

// loadTarget fetches the membership named in the route, treating one outside
// the guarded scope or already inactive as missing.
func (h *MembersHandler) loadTarget(c *gin.Context, gc *middleware.GuardContext) (*models.Membership, error) {
	id, err := uuidParam(c, "membership_id", "membership")
	if err != nil {
		return nil, err
	}
	m, err := h.store.GetMembershipByID(c.Request.Context(), id)
	if err != nil {
		return nil, storeError(err, "member not found", "")
	}
	if !m.IsActive || !models.InScope(m, gc.Scope) {
		return nil, apperr.NotFound("member not found")
	}
	return m, nil
}

func (h *MembersHandler) ensureAnotherOwner(ctx context.Context, orgID uuid.UUID) error {
	owners, err := h.store.CountActiveOwners(ctx, orgID)
	if err != nil {
		return apperr.Internal(err)
	}
	if owners <= 1 {
		return apperr.Conflict("an organization must keep at least one owner")
	}
	return nil
}
