package auth

import (
	"testing"

	"github.com/MacJediWizard/tenancy/internal/models"
)

func TestHierarchy_Rank(t *testing.T) {
	tests := []struct {
		hierarchy Hierarchy
		role      models.Role
		want      int
	}{
		{OrgHierarchy, models.OrgRoleMember, 0},
		{OrgHierarchy, models.OrgRoleAdmin, 1},
		{OrgHierarchy, models.OrgRoleOwner, 2},
		{OrgHierarchy, models.TeamRoleLead, -1},
		{OrgHierarchy, "superuser", -1},
		{OrgHierarchy, "", -1},
		{TeamHierarchy, models.TeamRoleMember, 0},
		{TeamHierarchy, models.TeamRoleLead, 1},
		{TeamHierarchy, models.OrgRoleOwner, -1},
	}

	for _, tt := range tests {
		if got := tt.hierarchy.Rank(tt.role); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.role, got, tt.want)
		}
	}
}

// Every ordered pair in each hierarchy must agree with list position.
func TestMeetsMinimum_AllPairs(t *testing.T) {
	for _, h := range []Hierarchy{OrgHierarchy, TeamHierarchy} {
		for i, actual := range h {
			for j, minimum := range h {
				want := i >= j
				if got := MeetsMinimum(actual, minimum, h); got != want {
					t.Errorf("MeetsMinimum(%q, %q) = %v, want %v", actual, minimum, got, want)
				}
			}
		}
	}
}

func TestMeetsMinimum_UnknownRoles(t *testing.T) {
	unknown := []models.Role{"", "root", "OWNER", "lead"}
	for _, role := range unknown {
		for _, minimum := range OrgHierarchy {
			if MeetsMinimum(role, minimum, OrgHierarchy) {
				t.Errorf("unknown role %q should not meet %q", role, minimum)
			}
		}
	}

	if MeetsMinimum(models.OrgRoleOwner, "bogus", OrgHierarchy) {
		t.Error("unknown minimum should never be satisfied")
	}
}

func TestHierarchyFor(t *testing.T) {
	if got := HierarchyFor(models.ScopeOrganization); len(got) != 3 || got[2] != models.OrgRoleOwner {
		t.Errorf("unexpected organization hierarchy: %v", got)
	}
	if got := HierarchyFor(models.ScopeTeam); len(got) != 2 || got[1] != models.TeamRoleLead {
		t.Errorf("unexpected team hierarchy: %v", got)
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(models.ScopeOrganization, models.OrgRoleAdmin) {
		t.Error("admin should be a valid organization role")
	}
	if IsValidRole(models.ScopeTeam, models.OrgRoleAdmin) {
		t.Error("admin should not be a valid team role")
	}
	if IsValidRole(models.ScopeOrganization, models.TeamRoleLead) {
		t.Error("lead should not be a valid organization role")
	}
	if !IsValidRole(models.ScopeTeam, models.TeamRoleLead) {
		t.Error("lead should be a valid team role")
	}
}
