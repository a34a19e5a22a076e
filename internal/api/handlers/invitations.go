package handlers

import (
	"context"
	"net/http"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/invites"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InvitationService is the invitation lifecycle used by the invitation endpoints.
type InvitationService interface {
	Create(ctx context.Context, req invites.CreateRequest) (*invites.CreateResult, error)
	Accept(ctx context.Context, token, userID, email string) (*invites.AcceptResult, error)
	Decline(ctx context.Context, token string) (*models.Invitation, error)
	Cancel(ctx context.Context, id uuid.UUID, scope models.Scope, actorID string) (*models.Invitation, error)
	Lookup(ctx context.Context, token string) (*models.InvitationDetails, error)
	ListPending(ctx context.Context, scope models.Scope) ([]*models.Invitation, error)
}

// InvitationsHandler handles invitation HTTP endpoints.
type InvitationsHandler struct {
	service InvitationService
	authz   middleware.Authorizer
	audit   AuditRecorder
	logger  zerolog.Logger
}

// NewInvitationsHandler creates a new InvitationsHandler.
func NewInvitationsHandler(service InvitationService, authz middleware.Authorizer, recorder AuditRecorder, logger zerolog.Logger) *InvitationsHandler {
	return &InvitationsHandler{
		service: service,
		authz:   authz,
		audit:   recorder,
		logger:  logger.With().Str("component", "invitations_handler").Logger(),
	}
}

// RegisterRoutes registers invitation routes on the given router group.
func (h *InvitationsHandler) RegisterRoutes(r *gin.RouterGroup, limits RouteLimits) {
	orgAdmin := middleware.RequireOrgRole(h.authz, models.OrgRoleAdmin, h.logger)
	orgInvites := r.Group("/organizations/:id/invitations")
	{
		orgInvites.GET("", orgAdmin, h.List)
		orgInvites.POST("", chain(limits.Invitation, orgAdmin, h.Create)...)
		orgInvites.DELETE("/:invitation_id", chain(limits.Mutation, orgAdmin, h.Cancel)...)
	}

	teamLead := middleware.RequireTeamRole(h.authz, models.TeamRoleLead, h.logger)
	teamInvites := r.Group("/teams/:team_id/invitations")
	{
		teamInvites.GET("", teamLead, h.List)
		teamInvites.POST("", chain(limits.Invitation, teamLead, h.Create)...)
		teamInvites.DELETE("/:invitation_id", chain(limits.Mutation, teamLead, h.Cancel)...)
	}

	inv := r.Group("/invitations")
	{
		inv.GET("/:token", h.Lookup)
		inv.POST("/accept", chain(middleware.RequireAuth(), limits.Mutation, h.Accept)...)
		inv.POST("/decline", chain(limits.Mutation, h.Decline)...)
	}
}

// InviteRequest is the request body for inviting someone to an organization or team.
type InviteRequest struct {
	Email   string      `json:"email" validate:"required,email,max=320"`
	Role    models.Role `json:"role" validate:"required"`
	Message string      `json:"message" validate:"max=1000"`
}

// TokenRequest carries an invitation token in the request body.
type TokenRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// InvitationResponse is returned when an invitation is created.
type InvitationResponse struct {
	Invitation *models.Invitation `json:"invitation"`
	InviteLink string             `json:"invite_link"`
	Superseded int64              `json:"superseded"`
}

// List returns the pending invitations of the guarded scope.
// GET /api/v1/organizations/:id/invitations
// GET /api/v1/teams/:team_id/invitations
func (h *InvitationsHandler) List(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	invitations, err := h.service.ListPending(c.Request.Context(), gc.Scope)
	if err != nil {
		respondError(c, h.logger, err, "failed to list invitations")
		return
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{"invitations": invitations})
}

// Create invites an email address into the guarded scope. A pending invitation
// for the same address is cancelled and replaced.
//
//	@Summary		Create invitation
//	@Tags			Invitations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Organization ID"
//	@Param			request	body		InviteRequest	true	"Invitee"
//	@Success		201		{object}	InvitationResponse
//	@Failure		400		{object}	middleware.Envelope
//	@Failure		404		{object}	middleware.Envelope
//	@Failure		409		{object}	middleware.Envelope
//	@Failure		429		{object}	middleware.Envelope
//	@Security		SessionAuth
//	@Router			/organizations/{id}/invitations [post]
func (h *InvitationsHandler) Create(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	var req InviteRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid invitation request")
		return
	}

	result, err := h.service.Create(c.Request.Context(), invites.CreateRequest{
		Email:       req.Email,
		Role:        req.Role,
		Message:     req.Message,
		Scope:       gc.Scope,
		InvitedBy:   gc.UserID,
		InviterRole: gc.Role,
	})
	if err != nil {
		respondError(c, h.logger, err, "failed to create invitation")
		return
	}

	h.audit.Record(c.Request.Context(), auditEntry(c, gc.UserID, models.AuditActionInvitationCreated,
		"invitation", result.Invitation.ID.String(), gc.Scope).
		WithMetadata(map[string]any{
			"email":      result.Invitation.Email,
			"role":       result.Invitation.Role,
			"superseded": result.Superseded,
		}))

	middleware.RespondOK(c, http.StatusCreated, InvitationResponse{
		Invitation: result.Invitation,
		InviteLink: result.Link,
		Superseded: result.Superseded,
	})
}

// Cancel withdraws a pending invitation of the guarded scope.
// DELETE /api/v1/organizations/:id/invitations/:invitation_id
func (h *InvitationsHandler) Cancel(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	id, err := uuidParam(c, "invitation_id", "invitation")
	if err != nil {
		respondError(c, h.logger, err, "invalid invitation id")
		return
	}

	inv, err := h.service.Cancel(c.Request.Context(), id, gc.Scope, gc.UserID)
	if err != nil {
		respondError(c, h.logger, err, "failed to cancel invitation")
		return
	}

	h.audit.Record(c.Request.Context(), auditEntry(c, gc.UserID, models.AuditActionInvitationCancelled,
		"invitation", inv.ID.String(), gc.Scope).
		WithMetadata(map[string]any{"email": inv.Email}))

	middleware.RespondOK(c, http.StatusOK, gin.H{"invitation": inv})
}

// Lookup returns the public details of an invitation by token.
// GET /api/v1/invitations/:token
func (h *InvitationsHandler) Lookup(c *gin.Context) {
	details, err := h.service.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, err, "failed to look up invitation")
		return
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{"invitation": details})
}

// Accept redeems an invitation for the authenticated user.
//
//	@Summary		Accept invitation
//	@Tags			Invitations
//	@Accept			json
//	@Produce		json
//	@Param			request	body		TokenRequest	true	"Invitation token"
//	@Success		200		{object}	middleware.Envelope
//	@Failure		404		{object}	middleware.Envelope
//	@Failure		409		{object}	middleware.Envelope
//	@Failure		410		{object}	middleware.Envelope
//	@Security		SessionAuth
//	@Router			/invitations/accept [post]
func (h *InvitationsHandler) Accept(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req TokenRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid accept request")
		return
	}

	result, err := h.service.Accept(c.Request.Context(), req.Token, user.ID, user.Email)
	if err != nil {
		respondError(c, h.logger, err, "failed to accept invitation")
		return
	}

	if scope, err := models.ScopeOf(result.Invitation); err == nil {
		h.audit.Record(c.Request.Context(), auditEntry(c, user.ID, models.AuditActionInvitationAccepted,
			"invitation", result.Invitation.ID.String(), scope).
			WithMetadata(map[string]any{
				"membership_id": result.Membership.ID.String(),
				"role":          result.Membership.Role,
			}))
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{
		"invitation": result.Invitation,
		"membership": result.Membership,
	})
}

// Decline refuses an invitation. Possession of the token is sufficient.
// POST /api/v1/invitations/decline
func (h *InvitationsHandler) Decline(c *gin.Context) {
	var req TokenRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid decline request")
		return
	}

	inv, err := h.service.Decline(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.logger, err, "failed to decline invitation")
		return
	}

	actor := inv.Email
	if user := middleware.GetUser(c); user != nil {
		actor = user.ID
	}
	if scope, err := models.ScopeOf(inv); err == nil {
		h.audit.Record(c.Request.Context(), auditEntry(c, actor, models.AuditActionInvitationDeclined,
			"invitation", inv.ID.String(), scope))
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{"invitation": inv})
}
