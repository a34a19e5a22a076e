package models

import (
	"time"

	"github.com/google/uuid"
)

// Team is either part of an organization or a standalone tenant.
type Team struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID *uuid.UUID     `json:"organization_id,omitempty"`
	ParentTeamID   *uuid.UUID     `json:"parent_team_id,omitempty"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Description    string         `json:"description,omitempty"`
	Settings       map[string]any `json:"settings"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewTeam creates a new active Team. A nil orgID creates a standalone team.
func NewTeam(orgID *uuid.UUID, name, slug string) *Team {
	now := time.Now()
	return &Team{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Slug:           slug,
		Settings:       map[string]any{},
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsStandalone returns true if the team does not belong to an organization.
func (t *Team) IsStandalone() bool {
	return t.OrganizationID == nil
}

// SameTenant reports whether other belongs to the same organization, or both are standalone.
func (t *Team) SameTenant(other *Team) bool {
	if t.OrganizationID == nil || other.OrganizationID == nil {
		return t.OrganizationID == nil && other.OrganizationID == nil
	}
	return *t.OrganizationID == *other.OrganizationID
}
