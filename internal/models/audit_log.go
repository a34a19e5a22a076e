package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents a privileged action that is recorded.
type AuditAction string

const (
	AuditActionOrganizationCreated AuditAction = "organization.created"
	AuditActionOrganizationUpdated AuditAction = "organization.updated"
	AuditActionOrganizationDeleted AuditAction = "organization.deleted"

	AuditActionTeamCreated AuditAction = "team.created"
	AuditActionTeamUpdated AuditAction = "team.updated"
	AuditActionTeamDeleted AuditAction = "team.deleted"

	AuditActionMemberRoleUpdated AuditAction = "member.role_updated"
	AuditActionMemberRemoved     AuditAction = "member.removed"

	AuditActionInvitationCreated   AuditAction = "invitation.created"
	AuditActionInvitationAccepted  AuditAction = "invitation.accepted"
	AuditActionInvitationDeclined  AuditAction = "invitation.declined"
	AuditActionInvitationCancelled AuditAction = "invitation.cancelled"
)

var validAuditActions = map[AuditAction]struct{}{
	AuditActionOrganizationCreated: {},
	AuditActionOrganizationUpdated: {},
	AuditActionOrganizationDeleted: {},
	AuditActionTeamCreated:         {},
	AuditActionTeamUpdated:         {},
	AuditActionTeamDeleted:         {},
	AuditActionMemberRoleUpdated:   {},
	AuditActionMemberRemoved:       {},
	AuditActionInvitationCreated:   {},
	AuditActionInvitationAccepted:  {},
	AuditActionInvitationDeclined:  {},
	AuditActionInvitationCancelled: {},
}

// IsValidAuditAction checks membership in the closed action set.
func IsValidAuditAction(a AuditAction) bool {
	_, ok := validAuditActions[a]
	return ok
}

// AuditLog is an immutable record of a privileged action.
type AuditLog struct {
	ID             uuid.UUID      `json:"id"`
	ActorID        string         `json:"actor_id"`
	Action         AuditAction    `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id,omitempty"`
	OrganizationID *uuid.UUID     `json:"organization_id,omitempty"`
	TeamID         *uuid.UUID     `json:"team_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewAuditLog creates a new AuditLog entry.
func NewAuditLog(actorID string, action AuditAction, resourceType, resourceID string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     map[string]any{},
		CreatedAt:    time.Now(),
	}
}

// WithScope sets the tenant scope of the entry.
func (a *AuditLog) WithScope(scope Scope) *AuditLog {
	a.OrganizationID, a.TeamID = scope.Columns()
	return a
}

// WithMetadata merges metadata into the entry.
func (a *AuditLog) WithMetadata(md map[string]any) *AuditLog {
	for k, v := range md {
		a.Metadata[k] = v
	}
	return a
}

// WithRequestInfo sets HTTP request provenance.
func (a *AuditLog) WithRequestInfo(ipAddress, userAgent string) *AuditLog {
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// OrganizationScope implements Scoped.
func (a *AuditLog) OrganizationScope() *uuid.UUID { return a.OrganizationID }

// TeamScope implements Scoped.
func (a *AuditLog) TeamScope() *uuid.UUID { return a.TeamID }
