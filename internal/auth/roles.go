package auth

import (
	"github.com/MacJediWizard/tenancy/internal/models"
)

// Hierarchy is an ordered list of roles, lowest privilege first.
type Hierarchy []models.Role

var (
	// OrgHierarchy is the role order for organization memberships.
	OrgHierarchy = Hierarchy{models.OrgRoleMember, models.OrgRoleAdmin, models.OrgRoleOwner}
	// TeamHierarchy is the role order for team memberships.
	TeamHierarchy = Hierarchy{models.TeamRoleMember, models.TeamRoleLead}
)

// Rank returns the position of role in the hierarchy, or -1 if the role is unknown.
func (h Hierarchy) Rank(role models.Role) int {
	for i, r := range h {
		if r == role {
			return i
		}
	}
	return -1
}

// Contains reports whether role is part of the hierarchy.
func (h Hierarchy) Contains(role models.Role) bool {
	return h.Rank(role) >= 0
}

// MeetsMinimum reports whether actual ranks at or above minimum in h.
// Unknown actual roles never qualify. An unknown minimum is never satisfied either.
func MeetsMinimum(actual, minimum models.Role, h Hierarchy) bool {
	a, m := h.Rank(actual), h.Rank(minimum)
	if a < 0 || m < 0 {
		return false
	}
	return a >= m
}

// HierarchyFor returns the role hierarchy of a scope type.
func HierarchyFor(scope models.ScopeType) Hierarchy {
	if scope == models.ScopeTeam {
		return TeamHierarchy
	}
	return OrgHierarchy
}

// IsValidRole reports whether role exists in the hierarchy of the scope type.
func IsValidRole(scope models.ScopeType, role models.Role) bool {
	return HierarchyFor(scope).Contains(role)
}
