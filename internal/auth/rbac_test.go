package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/google/uuid"
)

// mockMembershipStore implements MembershipStore for testing.
type mockMembershipStore struct {
	memberships map[string]*models.Membership // key: "userID:scopeID"
	teams       map[uuid.UUID]*models.Team
	err         error
}

func newMockMembershipStore() *mockMembershipStore {
	return &mockMembershipStore{
		memberships: make(map[string]*models.Membership),
		teams:       make(map[uuid.UUID]*models.Team),
	}
}

func (m *mockMembershipStore) addMembership(userID string, scope models.Scope, role models.Role) {
	m.memberships[userID+":"+scope.ID.String()] = models.NewMembership(userID, "", scope, role, nil)
}

func (m *mockMembershipStore) GetActiveMembership(_ context.Context, userID string, scope models.Scope) (*models.Membership, error) {
	if m.err != nil {
		return nil, m.err
	}
	membership, ok := m.memberships[userID+":"+scope.ID.String()]
	if !ok || !models.InScope(membership, scope) {
		return nil, nil
	}
	return membership, nil
}

func (m *mockMembershipStore) GetTeamByID(_ context.Context, id uuid.UUID) (*models.Team, error) {
	if m.err != nil {
		return nil, m.err
	}
	team, ok := m.teams[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return team, nil
}

func TestRBAC_Authorize_Organization(t *testing.T) {
	store := newMockMembershipStore()
	scope := models.NewOrgScope(uuid.New())
	store.addMembership("owner", scope, models.OrgRoleOwner)
	store.addMembership("admin", scope, models.OrgRoleAdmin)
	store.addMembership("member", scope, models.OrgRoleMember)
	rbac := NewRBAC(store)

	tests := []struct {
		name    string
		userID  string
		minimum models.Role
		wantErr error
	}{
		{"owner meets owner", "owner", models.OrgRoleOwner, nil},
		{"owner meets member", "owner", models.OrgRoleMember, nil},
		{"admin meets admin", "admin", models.OrgRoleAdmin, nil},
		{"admin below owner", "admin", models.OrgRoleOwner, ErrPermissionDenied},
		{"member below admin", "member", models.OrgRoleAdmin, ErrPermissionDenied},
		{"stranger", "stranger", models.OrgRoleMember, ErrNotMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, err := rbac.Authorize(context.Background(), tt.userID, scope, tt.minimum)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !IsAccessDenied(err) {
					t.Error("expected access denied classification")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if grant.UserID != tt.userID || grant.Scope != scope {
				t.Errorf("unexpected grant: %+v", grant)
			}
		})
	}
}

func TestRBAC_Authorize_TeamInheritsFromOrganizationAdmin(t *testing.T) {
	store := newMockMembershipStore()
	orgID := uuid.New()
	team := models.NewTeam(&orgID, "Platform", "platform")
	store.teams[team.ID] = team

	orgScope := models.NewOrgScope(orgID)
	teamScope := models.NewTeamScope(team.ID)
	store.addMembership("org-admin", orgScope, models.OrgRoleAdmin)
	store.addMembership("org-member", orgScope, models.OrgRoleMember)
	store.addMembership("team-member", teamScope, models.TeamRoleMember)
	rbac := NewRBAC(store)
	ctx := context.Background()

	grant, err := rbac.Authorize(ctx, "org-admin", teamScope, models.TeamRoleLead)
	if err != nil {
		t.Fatalf("org admin should be implicit team lead: %v", err)
	}
	if !grant.Inherited || grant.Role != models.TeamRoleLead {
		t.Errorf("expected inherited lead grant, got %+v", grant)
	}

	if _, err := rbac.Authorize(ctx, "org-member", teamScope, models.TeamRoleMember); !errors.Is(err, ErrNotMember) {
		t.Errorf("org member without team membership should be denied, got %v", err)
	}

	if _, err := rbac.Authorize(ctx, "team-member", teamScope, models.TeamRoleLead); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("team member should not meet lead, got %v", err)
	}
}

func TestRBAC_Authorize_StandaloneTeam(t *testing.T) {
	store := newMockMembershipStore()
	team := models.NewTeam(nil, "Solo", "solo")
	store.teams[team.ID] = team
	scope := models.NewTeamScope(team.ID)
	store.addMembership("lead", scope, models.TeamRoleLead)
	rbac := NewRBAC(store)

	if _, err := rbac.Authorize(context.Background(), "lead", scope, models.TeamRoleLead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := rbac.Authorize(context.Background(), "other", scope, models.TeamRoleMember); !errors.Is(err, ErrNotMember) {
		t.Errorf("expected ErrNotMember, got %v", err)
	}
}

func TestRBAC_Authorize_StoreError(t *testing.T) {
	store := newMockMembershipStore()
	store.err = errors.New("connection refused")
	rbac := NewRBAC(store)

	_, err := rbac.Authorize(context.Background(), "user", models.NewOrgScope(uuid.New()), models.OrgRoleMember)
	if err == nil {
		t.Fatal("expected error")
	}
	if IsAccessDenied(err) {
		t.Error("store failures must not be reported as access denied")
	}
}

func TestRBAC_GetUserRole(t *testing.T) {
	store := newMockMembershipStore()
	scope := models.NewOrgScope(uuid.New())
	store.addMembership("admin", scope, models.OrgRoleAdmin)
	rbac := NewRBAC(store)

	role, err := rbac.GetUserRole(context.Background(), "admin", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != models.OrgRoleAdmin {
		t.Errorf("expected admin, got %s", role)
	}

	if _, err := rbac.GetUserRole(context.Background(), "nobody", scope); !errors.Is(err, ErrNotMember) {
		t.Errorf("expected ErrNotMember, got %v", err)
	}
}

func TestCanManageMember(t *testing.T) {
	tests := []struct {
		scope  models.ScopeType
		actor  models.Role
		target models.Role
		want   bool
	}{
		{models.ScopeOrganization, models.OrgRoleOwner, models.OrgRoleOwner, true},
		{models.ScopeOrganization, models.OrgRoleOwner, models.OrgRoleAdmin, true},
		{models.ScopeOrganization, models.OrgRoleAdmin, models.OrgRoleMember, true},
		{models.ScopeOrganization, models.OrgRoleAdmin, models.OrgRoleAdmin, false},
		{models.ScopeOrganization, models.OrgRoleAdmin, models.OrgRoleOwner, false},
		{models.ScopeOrganization, models.OrgRoleMember, models.OrgRoleMember, false},
		{models.ScopeTeam, models.TeamRoleLead, models.TeamRoleMember, true},
		{models.ScopeTeam, models.TeamRoleLead, models.TeamRoleLead, true},
		{models.ScopeTeam, models.TeamRoleMember, models.TeamRoleMember, false},
	}

	for _, tt := range tests {
		if got := CanManageMember(tt.scope, tt.actor, tt.target); got != tt.want {
			t.Errorf("CanManageMember(%s, %s, %s) = %v, want %v", tt.scope, tt.actor, tt.target, got, tt.want)
		}
	}
}

func TestCanAssignRole(t *testing.T) {
	tests := []struct {
		scope  models.ScopeType
		actor  models.Role
		target models.Role
		want   bool
	}{
		{models.ScopeOrganization, models.OrgRoleOwner, models.OrgRoleOwner, true},
		{models.ScopeOrganization, models.OrgRoleOwner, models.OrgRoleAdmin, true},
		{models.ScopeOrganization, models.OrgRoleAdmin, models.OrgRoleAdmin, false},
		{models.ScopeOrganization, models.OrgRoleAdmin, models.OrgRoleMember, true},
		{models.ScopeOrganization, models.OrgRoleMember, models.OrgRoleMember, false},
		{models.ScopeOrganization, models.OrgRoleOwner, models.TeamRoleLead, false},
		{models.ScopeTeam, models.TeamRoleLead, models.TeamRoleLead, true},
		{models.ScopeTeam, models.TeamRoleLead, models.OrgRoleOwner, false},
		{models.ScopeTeam, models.TeamRoleMember, models.TeamRoleMember, false},
	}

	for _, tt := range tests {
		if got := CanAssignRole(tt.scope, tt.actor, tt.target); got != tt.want {
			t.Errorf("CanAssignRole(%s, %s, %s) = %v, want %v", tt.scope, tt.actor, tt.target, got, tt.want)
		}
	}
}
