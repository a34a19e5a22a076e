package models

import (
	"errors"

	"github.com/google/uuid"
)

// ScopeType identifies whether a record belongs to an organization or a team.
type ScopeType string

const (
	// ScopeOrganization is an organization-level scope.
	ScopeOrganization ScopeType = "organization"
	// ScopeTeam is a team-level scope.
	ScopeTeam ScopeType = "team"
)

// ErrInvalidScope is returned when a record has neither or both scope ids set.
var ErrInvalidScope = errors.New("exactly one of organization id or team id must be set")

// Scope is a resolved tenant scope.
type Scope struct {
	Type ScopeType `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// NewOrgScope returns an organization scope.
func NewOrgScope(id uuid.UUID) Scope {
	return Scope{Type: ScopeOrganization, ID: id}
}

// NewTeamScope returns a team scope.
func NewTeamScope(id uuid.UUID) Scope {
	return Scope{Type: ScopeTeam, ID: id}
}

// IsOrganization reports whether the scope is an organization.
func (s Scope) IsOrganization() bool { return s.Type == ScopeOrganization }

// IsTeam reports whether the scope is a team.
func (s Scope) IsTeam() bool { return s.Type == ScopeTeam }

// Columns returns the (organization_id, team_id) pair for this scope, one of which is nil.
func (s Scope) Columns() (*uuid.UUID, *uuid.UUID) {
	id := s.ID
	if s.IsTeam() {
		return nil, &id
	}
	return &id, nil
}

// Scoped is implemented by rows that belong to exactly one tenant scope.
type Scoped interface {
	OrganizationScope() *uuid.UUID
	TeamScope() *uuid.UUID
}

// ScopeOf resolves the scope of a Scoped row, enforcing the either/or invariant.
func ScopeOf(s Scoped) (Scope, error) {
	orgID, teamID := s.OrganizationScope(), s.TeamScope()
	switch {
	case orgID != nil && teamID == nil:
		return NewOrgScope(*orgID), nil
	case teamID != nil && orgID == nil:
		return NewTeamScope(*teamID), nil
	default:
		return Scope{}, ErrInvalidScope
	}
}

// InScope reports whether a Scoped row belongs to the given scope.
func InScope(s Scoped, scope Scope) bool {
	got, err := ScopeOf(s)
	if err != nil {
		return false
	}
	return got == scope
}
