package invites

import (
	"context"

	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/rs/zerolog"
)

// Notification carries what a delivery channel needs to tell an invitee about an invitation.
type Notification struct {
	Invitation *models.Invitation
	Link       string
	RoleLabel  string
	ExpiresIn  string
}

// Notifier delivers invitations to invitees, typically by email.
type Notifier interface {
	NotifyInvitation(ctx context.Context, n Notification) error
}

// LogNotifier records invitations in the service log instead of delivering them.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "invite_notifier").Logger()}
}

// NotifyInvitation logs the invitation. The link is omitted since it carries the token.
func (n *LogNotifier) NotifyInvitation(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("invitation_id", note.Invitation.ID.String()).
		Str("email", note.Invitation.Email).
		Str("role", note.RoleLabel).
		Str("expires_in", note.ExpiresIn).
		Msg("invitation ready for delivery")
	return nil
}
