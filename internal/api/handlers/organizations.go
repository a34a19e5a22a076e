package handlers

import (
	"context"
	"net/http"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrganizationStore defines the interface for organization persistence operations.
type OrganizationStore interface {
	CreateOrganizationWithOwner(ctx context.Context, org *models.Organization, owner *models.Membership) error
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	DeleteOrganization(ctx context.Context, id uuid.UUID) error
}

// OrganizationsHandler handles organization-related HTTP endpoints.
type OrganizationsHandler struct {
	store  OrganizationStore
	authz  middleware.Authorizer
	audit  AuditRecorder
	logger zerolog.Logger
}

// NewOrganizationsHandler creates a new OrganizationsHandler.
func NewOrganizationsHandler(store OrganizationStore, authz middleware.Authorizer, recorder AuditRecorder, logger zerolog.Logger) *OrganizationsHandler {
	return &OrganizationsHandler{
		store:  store,
		authz:  authz,
		audit:  recorder,
		logger: logger.With().Str("component", "organizations_handler").Logger(),
	}
}

// RegisterRoutes registers organization routes on the given router group.
func (h *OrganizationsHandler) RegisterRoutes(r *gin.RouterGroup, limits RouteLimits) {
	orgs := r.Group("/organizations")
	{
		orgs.POST("", chain(middleware.RequireAuth(), limits.OrgCreate, h.Create)...)
		orgs.GET("/:id", middleware.RequireOrgRole(h.authz, models.OrgRoleMember, h.logger), h.Get)
		orgs.PUT("/:id", chain(limits.Mutation, middleware.RequireOrgRole(h.authz, models.OrgRoleAdmin, h.logger), h.Update)...)
		orgs.DELETE("/:id", chain(limits.Mutation, middleware.RequireOrgRole(h.authz, models.OrgRoleOwner, h.logger), h.Delete)...)
	}
}

// CreateOrgRequest is the request body for creating an organization.
type CreateOrgRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Slug        string `json:"slug" validate:"required,max=63,slug"`
	Description string `json:"description" validate:"max=1000"`
	LogoURL     string `json:"logo_url" validate:"omitempty,url,max=2048"`
}

// UpdateOrgRequest is the request body for updating an organization.
// Omitted fields are left unchanged.
type UpdateOrgRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,max=63,slug"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	LogoURL     *string `json:"logo_url" validate:"omitempty,url,max=2048"`
}

// OrgResponse is the response for organization endpoints.
type OrgResponse struct {
	Organization *models.Organization `json:"organization"`
	Role         models.Role          `json:"role"`
}

// Create creates a new organization with the caller as its owner.
//
//	@Summary		Create organization
//	@Description	Creates a new organization with the current user as owner
//	@Tags			Organizations
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateOrgRequest	true	"Organization details"
//	@Success		201		{object}	OrgResponse
//	@Failure		400		{object}	middleware.Envelope
//	@Failure		409		{object}	middleware.Envelope
//	@Failure		429		{object}	middleware.Envelope
//	@Security		SessionAuth
//	@Router			/organizations [post]
func (h *OrganizationsHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req CreateOrgRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid create organization request")
		return
	}

	org := models.NewOrganization(req.Name, req.Slug, user.ID)
	org.Description = req.Description
	org.LogoURL = req.LogoURL
	owner := models.NewMembership(user.ID, user.Email, models.NewOrgScope(org.ID), models.OrgRoleOwner, nil)

	if err := h.store.CreateOrganizationWithOwner(c.Request.Context(), org, owner); err != nil {
		respondError(c, h.logger, storeError(err, "organization not found", "organization slug already in use"), "failed to create organization")
		return
	}

	h.audit.Record(c.Request.Context(), auditEntry(c, user.ID, models.AuditActionOrganizationCreated,
		"organization", org.ID.String(), models.NewOrgScope(org.ID)).
		WithMetadata(map[string]any{"name": org.Name, "slug": org.Slug}))

	h.logger.Info().
		Str("org_id", org.ID.String()).
		Str("slug", org.Slug).
		Str("owner_id", user.ID).
		Msg("organization created")

	middleware.RespondOK(c, http.StatusCreated, OrgResponse{Organization: org, Role: models.OrgRoleOwner})
}

// Get returns an organization the caller belongs to.
// GET /api/v1/organizations/:id
func (h *OrganizationsHandler) Get(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	org, err := h.store.GetOrganizationByID(c.Request.Context(), gc.Scope.ID)
	if err != nil {
		respondError(c, h.logger, storeError(err, "organization not found", ""), "failed to get organization")
		return
	}

	middleware.RespondOK(c, http.StatusOK, OrgResponse{Organization: org, Role: gc.Role})
}

// Update changes the name, slug, description or logo of an organization.
// PUT /api/v1/organizations/:id
func (h *OrganizationsHandler) Update(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	var req UpdateOrgRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err, "invalid update organization request")
		return
	}

	org, err := h.store.GetOrganizationByID(c.Request.Context(), gc.Scope.ID)
	if err != nil {
		respondError(c, h.logger, storeError(err, "organization not found", ""), "failed to get organization")
		return
	}

	changed := map[string]any{}
	if req.Name != nil && *req.Name != org.Name {
		org.Name = *req.Name
		changed["name"] = org.Name
	}
	if req.Slug != nil && *req.Slug != org.Slug {
		org.Slug = *req.Slug
		changed["slug"] = org.Slug
	}
	if req.Description != nil && *req.Description != org.Description {
		org.Description = *req.Description
		changed["description"] = org.Description
	}
	if req.LogoURL != nil && *req.LogoURL != org.LogoURL {
		org.LogoURL = *req.LogoURL
		changed["logo_url"] = org.LogoURL
	}

	if len(changed) > 0 {
		if err := h.store.UpdateOrganization(c.Request.Context(), org); err != nil {
			respondError(c, h.logger, storeError(err, "organization not found", "organization slug already in use"), "failed to update organization")
			return
		}
		h.audit.Record(c.Request.Context(), auditEntry(c, gc.UserID, models.AuditActionOrganizationUpdated,
			"organization", org.ID.String(), gc.Scope).WithMetadata(changed))
	}

	middleware.RespondOK(c, http.StatusOK, OrgResponse{Organization: org, Role: gc.Role})
}

// Delete removes an organization together with its teams, memberships and invitations.
// DELETE /api/v1/organizations/:id
func (h *OrganizationsHandler) Delete(c *gin.Context) {
	gc := middleware.GetGuardContext(c)

	if err := h.store.DeleteOrganization(c.Request.Context(), gc.Scope.ID); err != nil {
		respondError(c, h.logger, storeError(err, "organization not found", ""), "failed to delete organization")
		return
	}

	h.audit.Record(c.Request.Context(), auditEntry(c, gc.UserID, models.AuditActionOrganizationDeleted,
		"organization", gc.Scope.ID.String(), gc.Scope))

	h.logger.Info().
		Str("org_id", gc.Scope.ID.String()).
		Str("user_id", gc.UserID).
		Msg("organization deleted")

	middleware.RespondOK(c, http.StatusOK, gin.H{"message": "organization deleted"})
}
