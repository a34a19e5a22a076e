// Package tenant resolves which organization and team a request acts within.
// Header values are hints only; membership is re-checked on every resolution.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tenant hint headers.
const (
	HeaderOrgID  = "X-Tenant-Org-ID"
	HeaderTeamID = "X-Tenant-Team-ID"
)

// Hints are the candidate scope ids supplied by the client.
type Hints struct {
	OrganizationID *uuid.UUID
	TeamID         *uuid.UUID
	// Malformed lists the headers that were present but not valid ids.
	Malformed []string
}

// HintsFromHeaders parses the tenant hint headers.
func HintsFromHeaders(h http.Header) Hints {
	var hints Hints
	hints.OrganizationID = parseHint(h, HeaderOrgID, &hints.Malformed)
	hints.TeamID = parseHint(h, HeaderTeamID, &hints.Malformed)
	return hints
}

func parseHint(h http.Header, name string, malformed *[]string) *uuid.UUID {
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		*malformed = append(*malformed, name)
		return nil
	}
	return &id
}

// Context is the resolved tenant of a request.
type Context struct {
	OrganizationID *uuid.UUID  `json:"organization_id"`
	TeamID         *uuid.UUID  `json:"team_id"`
	UserID         string      `json:"user_id,omitempty"`
	IsOrgMember    bool        `json:"is_org_member"`
	IsTeamMember   bool        `json:"is_team_member"`
	OrgRole        models.Role `json:"org_role,omitempty"`
	TeamRole       models.Role `json:"team_role,omitempty"`
	// TeamAccessInherited marks an organization admin reaching the hinted
	// team without being one of its members.
	TeamAccessInherited bool `json:"team_access_inherited,omitempty"`
}

// Resolver derives tenant contexts from hints and stored memberships.
type Resolver struct {
	rbac   *auth.RBAC
	store  auth.MembershipStore
	logger zerolog.Logger
}

// NewResolver creates a new tenant resolver.
func NewResolver(store auth.MembershipStore, logger zerolog.Logger) *Resolver {
	return &Resolver{
		rbac:   auth.NewRBAC(store),
		store:  store,
		logger: logger.With().Str("component", "tenant_resolver").Logger(),
	}
}

// Resolve returns the tenant context of userID. Without a user the context is
// empty. Hints naming scopes the user does not belong to are kept but flagged
// as non-member; malformed hints are ignored.
func (r *Resolver) Resolve(ctx context.Context, userID string, hints Hints) (*Context, error) {
	tc := &Context{}
	if userID == "" {
		return tc, nil
	}
	tc.UserID = userID
	tc.OrganizationID = hints.OrganizationID
	tc.TeamID = hints.TeamID

	if tc.TeamID != nil {
		team, err := r.store.GetTeamByID(ctx, *tc.TeamID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("resolve team: %w", err)
		}
		if team != nil && team.OrganizationID != nil {
			switch {
			case tc.OrganizationID == nil:
				orgID := *team.OrganizationID
				tc.OrganizationID = &orgID
			case *tc.OrganizationID != *team.OrganizationID:
				// The team hint points outside the hinted organization.
				r.logger.Debug().
					Str("user_id", userID).
					Str("team_id", tc.TeamID.String()).
					Str("organization_id", tc.OrganizationID.String()).
					Msg("ignoring team hint from another organization")
				tc.TeamID = nil
			}
		}
	}

	if tc.OrganizationID != nil {
		grant, err := r.rbac.Authorize(ctx, userID, models.NewOrgScope(*tc.OrganizationID), models.OrgRoleMember)
		switch {
		case err == nil:
			tc.IsOrgMember = true
			tc.OrgRole = grant.Role
		case !auth.IsAccessDenied(err):
			return nil, fmt.Errorf("resolve organization membership: %w", err)
		}
	}

	if tc.TeamID != nil {
		teamScope := models.NewTeamScope(*tc.TeamID)
		role, err := r.rbac.GetUserRole(ctx, userID, teamScope)
		switch {
		case err == nil:
			tc.IsTeamMember = true
			tc.TeamRole = role
		case errors.Is(err, auth.ErrNotMember):
			inherited, err := r.inheritsTeamAccess(ctx, userID, teamScope)
			if err != nil {
				return nil, err
			}
			tc.TeamAccessInherited = inherited
		default:
			return nil, fmt.Errorf("resolve team membership: %w", err)
		}
	}

	return tc, nil
}

func (r *Resolver) inheritsTeamAccess(ctx context.Context, userID string, team models.Scope) (bool, error) {
	grant, err := r.rbac.Authorize(ctx, userID, team, models.TeamRoleMember)
	switch {
	case err == nil:
		return grant.Inherited, nil
	case auth.IsAccessDenied(err):
		return false, nil
	default:
		return false, fmt.Errorf("resolve inherited team access: %w", err)
	}
}

// ResolveStrict is Resolve, but a malformed hint is a validation error and a
// team hint naming a team the user is not an active member of is reported as
// not found. Inherited admin access does not count as membership here.
func (r *Resolver) ResolveStrict(ctx context.Context, userID string, hints Hints) (*Context, error) {
	if len(hints.Malformed) > 0 {
		return nil, apperr.Validation(fmt.Sprintf("malformed tenant header: %s", strings.Join(hints.Malformed, ", ")))
	}
	tc, err := r.Resolve(ctx, userID, hints)
	if err != nil {
		return nil, err
	}
	if hints.TeamID != nil && userID != "" && !tc.IsTeamMember {
		return nil, apperr.NotFound("team not found")
	}
	return tc, nil
}
