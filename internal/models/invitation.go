package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
	InvitationExpired   InvitationStatus = "expired"
)

// Invitation is a time-boxed offer to join an organization or team.
type Invitation struct {
	ID             uuid.UUID        `json:"id"`
	Email          string           `json:"email"`
	OrganizationID *uuid.UUID       `json:"organization_id,omitempty"`
	TeamID         *uuid.UUID       `json:"team_id,omitempty"`
	Role           Role             `json:"role"`
	Token          string           `json:"-"` // Never expose token in JSON
	InvitedBy      string           `json:"invited_by"`
	Message        string           `json:"message,omitempty"`
	Status         InvitationStatus `json:"status"`
	ExpiresAt      time.Time        `json:"expires_at"`
	AcceptedBy     *string          `json:"accepted_by,omitempty"`
	AcceptedAt     *time.Time       `json:"accepted_at,omitempty"`
	RespondedAt    *time.Time       `json:"responded_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewInvitation creates a pending invitation that expires ttl after now.
func NewInvitation(email string, scope Scope, role Role, token, invitedBy, message string, now time.Time, ttl time.Duration) *Invitation {
	orgID, teamID := scope.Columns()
	return &Invitation{
		ID:             uuid.New(),
		Email:          email,
		OrganizationID: orgID,
		TeamID:         teamID,
		Role:           role,
		Token:          token,
		InvitedBy:      invitedBy,
		Message:        message,
		Status:         InvitationPending,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// OrganizationScope implements Scoped.
func (i *Invitation) OrganizationScope() *uuid.UUID { return i.OrganizationID }

// TeamScope implements Scoped.
func (i *Invitation) TeamScope() *uuid.UUID { return i.TeamID }

// IsPending returns true while the invitation can still be answered.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationPending
}

// IsExpiredAt reports whether the invitation's expiry has passed at t.
func (i *Invitation) IsExpiredAt(t time.Time) bool {
	return !t.Before(i.ExpiresAt)
}

// InvitationDetails is the public view of an invitation, looked up by token.
type InvitationDetails struct {
	ID        uuid.UUID        `json:"id"`
	ScopeType ScopeType        `json:"scope_type"`
	ScopeID   uuid.UUID        `json:"scope_id"`
	ScopeName string           `json:"scope_name"`
	Email     string           `json:"email"`
	Role      Role             `json:"role"`
	InvitedBy string           `json:"invited_by"`
	Message   string           `json:"message,omitempty"`
	Status    InvitationStatus `json:"status"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
}
