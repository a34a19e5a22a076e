package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a membership role, interpreted against the hierarchy of its scope.
type Role string

const (
	// OrgRoleOwner has full control over the organization.
	OrgRoleOwner Role = "owner"
	// OrgRoleAdmin can manage members, teams and invitations.
	OrgRoleAdmin Role = "admin"
	// OrgRoleMember can view the organization and its members.
	OrgRoleMember Role = "member"

	// TeamRoleLead can manage the team and its invitations.
	TeamRoleLead Role = "lead"
	// TeamRoleMember can view the team and its members.
	TeamRoleMember Role = "member"
)

// Membership links a user to exactly one organization or team.
type Membership struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"user_id"`
	Email          string          `json:"email,omitempty"`
	OrganizationID *uuid.UUID      `json:"organization_id,omitempty"`
	TeamID         *uuid.UUID      `json:"team_id,omitempty"`
	Role           Role            `json:"role"`
	Permissions    map[string]bool `json:"permissions"`
	InvitedBy      *string         `json:"invited_by,omitempty"`
	IsActive       bool            `json:"is_active"`
	JoinedAt       time.Time       `json:"joined_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewMembership creates a new active Membership in the given scope.
// Email is optional and is recorded so pending invitations can be matched against existing members.
func NewMembership(userID, email string, scope Scope, role Role, invitedBy *string) *Membership {
	now := time.Now()
	orgID, teamID := scope.Columns()
	return &Membership{
		ID:             uuid.New(),
		UserID:         userID,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		OrganizationID: orgID,
		TeamID:         teamID,
		Role:           role,
		Permissions:    map[string]bool{},
		InvitedBy:      invitedBy,
		IsActive:       true,
		JoinedAt:       now,
		UpdatedAt:      now,
	}
}

// OrganizationScope implements Scoped.
func (m *Membership) OrganizationScope() *uuid.UUID { return m.OrganizationID }

// TeamScope implements Scoped.
func (m *Membership) TeamScope() *uuid.UUID { return m.TeamID }

// IsOwner returns true if the membership is an organization owner.
func (m *Membership) IsOwner() bool {
	return m.OrganizationID != nil && m.Role == OrgRoleOwner
}

// MembershipWithScope is a membership joined with the display name of its scope.
type MembershipWithScope struct {
	Membership
	ScopeType ScopeType `json:"scope_type"`
	ScopeName string    `json:"scope_name"`
	ScopeSlug string    `json:"scope_slug"`
}
