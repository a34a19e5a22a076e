package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MacJediWizard/tenancy/internal/api/middleware"
	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/MacJediWizard/tenancy/internal/tenant"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ContextResolver derives the caller's tenant context from hint headers.
type ContextResolver interface {
	Resolve(ctx context.Context, userID string, hints tenant.Hints) (*tenant.Context, error)
	ResolveStrict(ctx context.Context, userID string, hints tenant.Hints) (*tenant.Context, error)
}

// MembershipLister lists a user's memberships.
type MembershipLister interface {
	ListMembershipsForUser(ctx context.Context, userID string, page db.Page) ([]*models.MembershipWithScope, int, error)
}

// PendingInvitationLister lists the invitations addressed to an email.
type PendingInvitationLister interface {
	ListForEmail(ctx context.Context, email string) ([]*models.Invitation, error)
}

// MeHandler serves the caller's own tenancy view.
type MeHandler struct {
	resolver    ContextResolver
	memberships MembershipLister
	invitations PendingInvitationLister
	logger      zerolog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(resolver ContextResolver, memberships MembershipLister, invitations PendingInvitationLister, logger zerolog.Logger) *MeHandler {
	return &MeHandler{
		resolver:    resolver,
		memberships: memberships,
		invitations: invitations,
		logger:      logger.With().Str("component", "me_handler").Logger(),
	}
}

// RegisterRoutes registers the /me routes on the given router group.
func (h *MeHandler) RegisterRoutes(r *gin.RouterGroup) {
	me := r.Group("/me")
	{
		me.GET("/context", h.Context)
		me.GET("/memberships", middleware.RequireAuth(), h.Memberships)
		me.GET("/invitations", middleware.RequireAuth(), h.Invitations)
	}
}

// MembershipListResponse is a page of the caller's memberships.
type MembershipListResponse struct {
	Memberships []*models.MembershipWithScope `json:"memberships"`
	Total       int                           `json:"total"`
	Limit       int                           `json:"limit"`
	Offset      int                           `json:"offset"`
}

// Context resolves the tenant context named by the X-Tenant-Org-ID and
// X-Tenant-Team-ID headers. Anonymous callers get an empty context. With
// ?strict=true malformed headers and inaccessible teams are errors.
// GET /api/v1/me/context
func (h *MeHandler) Context(c *gin.Context) {
	userID := ""
	if user := middleware.GetUser(c); user != nil {
		userID = user.ID
	}
	hints := tenant.HintsFromHeaders(c.Request.Header)

	resolve := h.resolver.Resolve
	if strict, _ := strconv.ParseBool(c.Query("strict")); strict {
		resolve = h.resolver.ResolveStrict
	}

	tc, err := resolve(c.Request.Context(), userID, hints)
	if err != nil {
		respondError(c, h.logger, err, "failed to resolve tenant context")
		return
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{"context": tc})
}

// Memberships returns a page of the caller's active memberships.
// GET /api/v1/me/memberships?limit=&offset=
func (h *MeHandler) Memberships(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	page, err := pageFromQuery(c)
	if err != nil {
		respondError(c, h.logger, err, "invalid pagination")
		return
	}
	page = page.Normalize()

	memberships, total, err := h.memberships.ListMembershipsForUser(c.Request.Context(), user.ID, page)
	if err != nil {
		respondError(c, h.logger, apperr.Internal(err), "failed to list memberships")
		return
	}
	if memberships == nil {
		memberships = []*models.MembershipWithScope{}
	}

	middleware.RespondOK(c, http.StatusOK, MembershipListResponse{
		Memberships: memberships,
		Total:       total,
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
}

// Invitations returns the pending invitations addressed to the caller's email.
// GET /api/v1/me/invitations
func (h *MeHandler) Invitations(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	invitations, err := h.invitations.ListForEmail(c.Request.Context(), user.Email)
	if err != nil {
		respondError(c, h.logger, err, "failed to list invitations")
		return
	}

	middleware.RespondOK(c, http.StatusOK, gin.H{"invitations": invitations})
}

// pageFromQuery reads limit and offset query parameters.
func pageFromQuery(c *gin.Context) (db.Page, error) {
	var page db.Page
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, apperr.Validation("limit must be an integer")
		}
		page.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, apperr.Validation("offset must be an integer")
		}
		page.Offset = n
	}
	return page, nil
}
