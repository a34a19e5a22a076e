// Package auth provides authentication and authorization for the tenancy service.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/google/uuid"
)

// MembershipStore defines the interface for fetching membership data.
type MembershipStore interface {
	// GetActiveMembership returns nil, nil when the user has no active membership in the scope.
	GetActiveMembership(ctx context.Context, userID string, scope models.Scope) (*models.Membership, error)
	GetTeamByID(ctx context.Context, id uuid.UUID) (*models.Team, error)
}

// Grant is the outcome of a successful authorization.
type Grant struct {
	UserID string
	Scope  models.Scope
	// Role is the effective role, which for team scopes may be inherited from the parent organization.
	Role models.Role
	// Inherited is true when the grant comes from an organization admin acting on one of its teams.
	Inherited bool
}

// RBAC provides role-based access control over organization and team scopes.
type RBAC struct {
	store MembershipStore
}

// NewRBAC creates a new RBAC instance.
func NewRBAC(store MembershipStore) *RBAC {
	return &RBAC{store: store}
}

// Authorize checks that the user holds at least the minimum role in the scope.
// It returns ErrNotMember when the user has no membership and ErrPermissionDenied
// when the membership ranks too low. Callers report both the same way as a missing resource.
func (r *RBAC) Authorize(ctx context.Context, userID string, scope models.Scope, minimum models.Role) (*Grant, error) {
	membership, err := r.store.GetActiveMembership(ctx, userID, scope)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}

	hierarchy := HierarchyFor(scope.Type)
	if membership != nil && MeetsMinimum(membership.Role, minimum, hierarchy) {
		return &Grant{UserID: userID, Scope: scope, Role: membership.Role}, nil
	}

	if scope.IsTeam() {
		grant, err := r.authorizeViaOrganization(ctx, userID, scope, minimum)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			return grant, nil
		}
	}

	if membership == nil {
		return nil, ErrNotMember
	}
	return nil, ErrPermissionDenied
}

// authorizeViaOrganization treats organization admins and owners as leads of the organization's teams.
func (r *RBAC) authorizeViaOrganization(ctx context.Context, userID string, scope models.Scope, minimum models.Role) (*Grant, error) {
	team, err := r.store.GetTeamByID(ctx, scope.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	if team.OrganizationID == nil {
		return nil, nil
	}

	orgMembership, err := r.store.GetActiveMembership(ctx, userID, models.NewOrgScope(*team.OrganizationID))
	if err != nil {
		return nil, fmt.Errorf("get organization membership: %w", err)
	}
	if orgMembership == nil || !MeetsMinimum(orgMembership.Role, models.OrgRoleAdmin, OrgHierarchy) {
		return nil, nil
	}
	if !MeetsMinimum(models.TeamRoleLead, minimum, TeamHierarchy) {
		return nil, nil
	}
	return &Grant{UserID: userID, Scope: scope, Role: models.TeamRoleLead, Inherited: true}, nil
}

// GetUserRole returns the user's own role in the scope.
func (r *RBAC) GetUserRole(ctx context.Context, userID string, scope models.Scope) (models.Role, error) {
	membership, err := r.store.GetActiveMembership(ctx, userID, scope)
	if err != nil {
		return "", fmt.Errorf("get membership: %w", err)
	}
	if membership == nil {
		return "", ErrNotMember
	}
	return membership.Role, nil
}

// CanManageMember checks if an actor with actorRole can update or remove a member holding targetRole.
// Owners can manage anyone. Admins can manage members, but not other admins or owners.
// Team leads can manage anyone in their team.
func CanManageMember(scope models.ScopeType, actorRole, targetRole models.Role) bool {
	if scope == models.ScopeTeam {
		return actorRole == models.TeamRoleLead && TeamHierarchy.Contains(targetRole)
	}

	switch actorRole {
	case models.OrgRoleOwner:
		return OrgHierarchy.Contains(targetRole)
	case models.OrgRoleAdmin:
		return targetRole == models.OrgRoleMember
	default:
		return false
	}
}

// CanAssignRole checks if an actor with actorRole can grant targetRole, by role change or invitation.
func CanAssignRole(scope models.ScopeType, actorRole, targetRole models.Role) bool {
	if scope == models.ScopeTeam {
		return actorRole == models.TeamRoleLead && TeamHierarchy.Contains(targetRole)
	}

	// Only owner can assign owner or admin role
	if targetRole == models.OrgRoleOwner || targetRole == models.OrgRoleAdmin {
		return actorRole == models.OrgRoleOwner
	}
	if targetRole == models.OrgRoleMember {
		return actorRole == models.OrgRoleOwner || actorRole == models.OrgRoleAdmin
	}
	return false
}

// ErrPermissionDenied is returned when a user lacks required permissions.
var ErrPermissionDenied = errors.New("permission denied")

// ErrNotMember is returned when a user is not a member of the scope.
var ErrNotMember = errors.New("not a member of this scope")

// IsAccessDenied reports whether err is an authorization failure rather than an infrastructure error.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNotMember)
}
