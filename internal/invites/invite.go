// Package invites manages the invitation lifecycle: creating, accepting,
// declining, cancelling and expiring invitations to organizations and teams.
package invites

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/MacJediWizard/tenancy/internal/validate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultExpiryDuration is the default expiry for invitations (7 days).
const DefaultExpiryDuration = 7 * 24 * time.Hour

// tokenBytes is the entropy of an invitation token (256 bits).
const tokenBytes = 32

// Store defines the persistence operations the invitation service needs.
type Store interface {
	CreateInvitation(ctx context.Context, inv *models.Invitation) (int64, error)
	GetInvitationByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	GetInvitationDetails(ctx context.Context, token string) (*models.InvitationDetails, error)
	ListPendingInvitations(ctx context.Context, scope models.Scope) ([]*models.Invitation, error)
	ListPendingInvitationsForEmail(ctx context.Context, email string, now time.Time) ([]*models.Invitation, error)
	TransitionInvitation(ctx context.Context, id uuid.UUID, status models.InvitationStatus, at time.Time) error
	LockInvitation(ctx context.Context, token string, fn func(ctx context.Context, itx db.InvitationTx) error) error
	SweepExpiredInvitations(ctx context.Context, now time.Time) (int64, error)
	HasActiveMemberWithEmail(ctx context.Context, email string, scope models.Scope) (bool, error)
}

// CreateRequest represents a request to invite someone to a scope.
type CreateRequest struct {
	Email   string      `json:"email" validate:"required,email,max=320"`
	Role    models.Role `json:"role" validate:"required"`
	Message string      `json:"message" validate:"max=1000"`

	Scope       models.Scope `json:"-"`
	InvitedBy   string       `json:"-"`
	InviterRole models.Role  `json:"-"`
}

// CreateResult is the outcome of a successful Create.
type CreateResult struct {
	Invitation *models.Invitation
	Link       string
	// Superseded is the number of earlier pending invitations cancelled for the same email and scope.
	Superseded int64
}

// AcceptResult is the outcome of a successful Accept.
type AcceptResult struct {
	Invitation *models.Invitation
	Membership *models.Membership
}

// Config configures the invitation service.
type Config struct {
	BaseURL string
	TTL     time.Duration
}

// Service handles invitation operations.
type Service struct {
	store    Store
	notifier Notifier
	metrics  *metrics.PrometheusMetrics
	baseURL  string
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new invitation service. A nil notifier falls back to logging.
func NewService(store Store, cfg Config, notifier Notifier, m *metrics.PrometheusMetrics, logger zerolog.Logger) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultExpiryDuration
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  m,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With().Str("component", "invite_service").Logger(),
	}
}

// GenerateToken generates a URL-safe random token for invitations.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateInviteLink generates the full invitation URL.
func (s *Service) GenerateInviteLink(token string) string {
	return fmt.Sprintf("%s/invite/%s", s.baseURL, token)
}

// Create issues a new invitation, superseding any pending one for the same email and scope.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if !auth.IsValidRole(req.Scope.Type, req.Role) {
		return nil, apperr.Validation(fmt.Sprintf("invalid role for %s: %s", req.Scope.Type, req.Role))
	}
	if req.InviterRole != "" && !auth.CanAssignRole(req.Scope.Type, req.InviterRole, req.Role) {
		return nil, apperr.Validation(fmt.Sprintf("a %s cannot invite a %s", req.InviterRole, req.Role))
	}

	member, err := s.store.HasActiveMemberWithEmail(ctx, req.Email, req.Scope)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("check existing member: %w", err))
	}
	if member {
		return nil, apperr.Conflict("user is already an active member")
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	inv := models.NewInvitation(req.Email, req.Scope, req.Role, token, req.InvitedBy, req.Message, s.now(), s.ttl)
	superseded, err := s.store.CreateInvitation(ctx, inv)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, apperr.Conflict("a pending invitation for this email was created concurrently")
		}
		return nil, apperr.Internal(fmt.Errorf("create invitation: %w", err))
	}

	s.metrics.RecordInvitation(string(models.InvitationPending))
	for i := int64(0); i < superseded; i++ {
		s.metrics.RecordInvitation(string(models.InvitationCancelled))
	}

	s.logger.Info().
		Str("invitation_id", inv.ID.String()).
		Str("scope_type", string(req.Scope.Type)).
		Str("scope_id", req.Scope.ID.String()).
		Str("role", string(inv.Role)).
		Str("invited_by", inv.InvitedBy).
		Int64("superseded", superseded).
		Msg("invitation created")

	link := s.GenerateInviteLink(token)
	if err := s.notifier.NotifyInvitation(ctx, Notification{
		Invitation: inv,
		Link:       link,
		RoleLabel:  formatRole(inv.Role),
		ExpiresIn:  formatDuration(s.ttl),
	}); err != nil {
		s.logger.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("failed to deliver invitation")
	}

	return &CreateResult{Invitation: inv, Link: link, Superseded: superseded}, nil
}

const expiredMessage = "invitation has expired, ask for a new invitation"

// notPending reports a settled invitation. Expired rows answer the same way
// whether the sweeper or a lazy check expired them.
func notPending(inv *models.Invitation) error {
	if inv.Status == models.InvitationExpired {
		return apperr.Expired(expiredMessage)
	}
	return apperr.Conflict(fmt.Sprintf("invitation is already %s", inv.Status))
}

// Accept redeems an invitation for userID. When email is non-empty it must
// match the invitee address. Membership creation and the status change commit
// together or not at all.
func (s *Service) Accept(ctx context.Context, token, userID, email string) (*AcceptResult, error) {
	if token == "" {
		return nil, apperr.NotFound("invitation not found")
	}
	if userID == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}

	var (
		result  *AcceptResult
		expired bool
	)
	err := s.store.LockInvitation(ctx, token, func(ctx context.Context, itx db.InvitationTx) error {
		inv := itx.Invitation()
		if !inv.IsPending() {
			return notPending(inv)
		}

		now := s.now()
		if inv.IsExpiredAt(now) {
			// Commit the expiry so the row reflects reality even though the caller gets an error.
			if err := itx.Transition(ctx, models.InvitationExpired, nil, now); err != nil {
				return fmt.Errorf("expire invitation: %w", err)
			}
			expired = true
			return nil
		}

		if email != "" && !strings.EqualFold(strings.TrimSpace(email), inv.Email) {
			return apperr.NotFound("invitation not found")
		}

		existing, err := itx.ActiveMembership(ctx, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if existing != nil {
			return apperr.Conflict("user is already an active member")
		}

		scope, err := models.ScopeOf(inv)
		if err != nil {
			return err
		}
		invitedBy := inv.InvitedBy
		m := models.NewMembership(userID, inv.Email, scope, inv.Role, &invitedBy)
		if err := itx.CreateMembership(ctx, m); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return apperr.Conflict("user is already an active member")
			}
			return fmt.Errorf("create membership: %w", err)
		}

		accepter := userID
		if err := itx.Transition(ctx, models.InvitationAccepted, &accepter, now); err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}

		result = &AcceptResult{Invitation: inv, Membership: m}
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}

	if expired {
		s.metrics.RecordInvitation(string(models.InvitationExpired))
		return nil, apperr.Expired(expiredMessage)
	}

	s.metrics.RecordInvitation(string(models.InvitationAccepted))
	s.logger.Info().
		Str("invitation_id", result.Invitation.ID.String()).
		Str("membership_id", result.Membership.ID.String()).
		Str("user_id", userID).
		Msg("invitation accepted")

	return result, nil
}

// Decline rejects a pending invitation by token. An invitation past its expiry
// is marked expired instead and reported as such.
func (s *Service) Decline(ctx context.Context, token string) (*models.Invitation, error) {
	if token == "" {
		return nil, apperr.NotFound("invitation not found")
	}

	var (
		declined *models.Invitation
		expired  bool
	)
	err := s.store.LockInvitation(ctx, token, func(ctx context.Context, itx db.InvitationTx) error {
		inv := itx.Invitation()
		if !inv.IsPending() {
			return notPending(inv)
		}

		now := s.now()
		if inv.IsExpiredAt(now) {
			if err := itx.Transition(ctx, models.InvitationExpired, nil, now); err != nil {
				return fmt.Errorf("expire invitation: %w", err)
			}
			expired = true
			return nil
		}

		if err := itx.Transition(ctx, models.InvitationDeclined, nil, now); err != nil {
			return fmt.Errorf("decline invitation: %w", err)
		}
		declined = inv
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}

	if expired {
		s.metrics.RecordInvitation(string(models.InvitationExpired))
		return nil, apperr.Expired(expiredMessage)
	}

	s.metrics.RecordInvitation(string(models.InvitationDeclined))
	s.logger.Info().Str("invitation_id", declined.ID.String()).Msg("invitation declined")
	return declined, nil
}

// Cancel withdraws a pending invitation belonging to scope.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, scope models.Scope, actorID string) (*models.Invitation, error) {
	inv, err := s.store.GetInvitationByID(ctx, id)
	if err != nil {
		return nil, s.classify(err)
	}
	if !models.InScope(inv, scope) {
		return nil, apperr.NotFound("invitation not found")
	}
	if !inv.IsPending() {
		return nil, apperr.Conflict(fmt.Sprintf("invitation is already %s", inv.Status))
	}

	now := s.now()
	if err := s.store.TransitionInvitation(ctx, inv.ID, models.InvitationCancelled, now); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Lost a race with accept, decline or the sweeper.
			return nil, apperr.Conflict("invitation is no longer pending")
		}
		return nil, apperr.Internal(fmt.Errorf("cancel invitation: %w", err))
	}
	inv.Status = models.InvitationCancelled
	inv.RespondedAt = &now
	inv.UpdatedAt = now

	s.metrics.RecordInvitation(string(models.InvitationCancelled))
	s.logger.Info().
		Str("invitation_id", inv.ID.String()).
		Str("cancelled_by", actorID).
		Msg("invitation cancelled")

	return inv, nil
}

// Lookup returns the public view of an invitation. Pending invitations past
// their expiry are reported as expired.
func (s *Service) Lookup(ctx context.Context, token string) (*models.InvitationDetails, error) {
	if token == "" {
		return nil, apperr.NotFound("invitation not found")
	}
	details, err := s.store.GetInvitationDetails(ctx, token)
	if err != nil {
		return nil, s.classify(err)
	}
	if details.Status == models.InvitationPending && !s.now().Before(details.ExpiresAt) {
		details.Status = models.InvitationExpired
	}
	return details, nil
}

// ListPending returns the pending invitations of a scope.
func (s *Service) ListPending(ctx context.Context, scope models.Scope) ([]*models.Invitation, error) {
	invitations, err := s.store.ListPendingInvitations(ctx, scope)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if invitations == nil {
		invitations = []*models.Invitation{}
	}
	return invitations, nil
}

// ListForEmail returns the unexpired pending invitations addressed to email.
func (s *Service) ListForEmail(ctx context.Context, email string) ([]*models.Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return []*models.Invitation{}, nil
	}
	invitations, err := s.store.ListPendingInvitationsForEmail(ctx, email, s.now())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if invitations == nil {
		invitations = []*models.Invitation{}
	}
	return invitations, nil
}

// SweepExpired marks every pending invitation past its expiry as expired.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.SweepExpiredInvitations(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < n; i++ {
		s.metrics.RecordInvitation(string(models.InvitationExpired))
	}
	return n, nil
}

// classify maps store errors onto application errors. Errors that already
// carry a kind pass through unchanged.
func (s *Service) classify(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("invitation not found")
	}
	return apperr.Internal(err)
}

// formatRole returns a display label for a role.
func formatRole(role models.Role) string {
	switch role {
	case models.OrgRoleOwner:
		return "Owner"
	case models.OrgRoleAdmin:
		return "Admin"
	case models.OrgRoleMember:
		return "Member"
	case models.TeamRoleLead:
		return "Team Lead"
	default:
		return string(role)
	}
}

// formatDuration formats a duration in human readable form.
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 1 {
		return fmt.Sprintf("%d days", days)
	}
	if days == 1 {
		return "1 day"
	}
	hours := int(d.Hours())
	if hours > 1 {
		return fmt.Sprintf("%d hours", hours)
	}
	return "1 hour"
}
