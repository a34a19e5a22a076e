package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const invitationColumns = `i.id, i.email, i.organization_id, i.team_id, i.role, i.token, i.invited_by, i.message,
	i.status, i.expires_at, i.accepted_by, i.accepted_at, i.responded_at, i.created_at, i.updated_at`

func scanInvitation(row scanner, extra ...any) (*models.Invitation, error) {
	var inv models.Invitation
	dest := append([]any{&inv.ID, &inv.Email, &inv.OrganizationID, &inv.TeamID, &inv.Role, &inv.Token,
		&inv.InvitedBy, &inv.Message, &inv.Status, &inv.ExpiresAt, &inv.AcceptedBy, &inv.AcceptedAt,
		&inv.RespondedAt, &inv.CreatedAt, &inv.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanInvitations(rows pgx.Rows) ([]*models.Invitation, error) {
	defer rows.Close()
	var invitations []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return invitations, nil
}

// CreateInvitation cancels any pending invitation for the same email and scope,
// then inserts inv, in one transaction. It returns the number of invitations cancelled.
func (db *DB) CreateInvitation(ctx context.Context, inv *models.Invitation) (int64, error) {
	scope, err := models.ScopeOf(inv)
	if err != nil {
		return 0, err
	}

	var cancelled int64
	err = db.ExecTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invitations
			SET status = $3, responded_at = $4, updated_at = $4
			WHERE email = $1 AND `+scopeColumn(scope)+` = $2 AND status = 'pending'
		`, inv.Email, scope.ID, models.InvitationCancelled, inv.CreatedAt)
		if err != nil {
			return fmt.Errorf("cancel pending invitations: %w", err)
		}
		cancelled = tag.RowsAffected()

		_, err = tx.Exec(ctx, `
			INSERT INTO invitations (id, email, organization_id, team_id, role, token, invited_by, message,
			                         status, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, inv.ID, inv.Email, inv.OrganizationID, inv.TeamID, inv.Role, inv.Token, inv.InvitedBy,
			inv.Message, inv.Status, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert invitation: %w", ErrDuplicate)
			}
			return fmt.Errorf("insert invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cancelled, nil
}

// GetInvitationByID returns an invitation by ID.
func (db *DB) GetInvitationByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	inv, err := scanInvitation(db.Pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations i WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// GetInvitationDetails returns the public view of an invitation, joined with its scope name.
func (db *DB) GetInvitationDetails(ctx context.Context, token string) (*models.InvitationDetails, error) {
	var name string
	inv, err := scanInvitation(db.Pool.QueryRow(ctx, `
		SELECT `+invitationColumns+`, COALESCE(o.name, t.name, '')
		FROM invitations i
		LEFT JOIN organizations o ON o.id = i.organization_id
		LEFT JOIN teams t ON t.id = i.team_id
		WHERE i.token = $1
	`, token), &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invitation details: %w", err)
	}

	scope, err := models.ScopeOf(inv)
	if err != nil {
		return nil, fmt.Errorf("invitation %s: %w", inv.ID, err)
	}
	return &models.InvitationDetails{
		ID:        inv.ID,
		ScopeType: scope.Type,
		ScopeID:   scope.ID,
		ScopeName: name,
		Email:     inv.Email,
		Role:      inv.Role,
		InvitedBy: inv.InvitedBy,
		Message:   inv.Message,
		Status:    inv.Status,
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}, nil
}

// ListPendingInvitations returns the pending invitations of a scope, newest first.
func (db *DB) ListPendingInvitations(ctx context.Context, scope models.Scope) ([]*models.Invitation, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations i
		WHERE i.`+scopeColumn(scope)+` = $1 AND i.status = 'pending'
		ORDER BY i.created_at DESC
	`, scope.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	return scanInvitations(rows)
}

// ListPendingInvitationsForEmail returns unexpired pending invitations addressed to email.
func (db *DB) ListPendingInvitationsForEmail(ctx context.Context, email string, now time.Time) ([]*models.Invitation, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations i
		WHERE i.email = $1 AND i.status = 'pending' AND i.expires_at > $2
		ORDER BY i.created_at DESC
	`, strings.ToLower(email), now)
	if err != nil {
		return nil, fmt.Errorf("list invitations for email: %w", err)
	}
	return scanInvitations(rows)
}

// TransitionInvitation moves a pending invitation to status. It returns ErrNotFound
// when the invitation does not exist or is no longer pending.
func (db *DB) TransitionInvitation(ctx context.Context, id uuid.UUID, status models.InvitationStatus, at time.Time) error {
	return transitionInvitation(ctx, db.Pool, id, status, nil, at)
}

func transitionInvitation(ctx context.Context, q querier, id uuid.UUID, status models.InvitationStatus, acceptedBy *string, at time.Time) error {
	var acceptedAt, respondedAt *time.Time
	if status == models.InvitationAccepted {
		acceptedAt = &at
	}
	if status != models.InvitationExpired {
		respondedAt = &at
	}

	tag, err := q.Exec(ctx, `
		UPDATE invitations
		SET status = $2, accepted_by = $3, accepted_at = $4, responded_at = $5, updated_at = $6
		WHERE id = $1 AND status = 'pending'
	`, id, status, acceptedBy, acceptedAt, respondedAt, at)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InvitationTx is the set of statements available while an invitation row is locked.
type InvitationTx interface {
	Invitation() *models.Invitation
	ActiveMembership(ctx context.Context, userID string) (*models.Membership, error)
	CreateMembership(ctx context.Context, m *models.Membership) error
	Transition(ctx context.Context, status models.InvitationStatus, acceptedBy *string, at time.Time) error
}

type lockedInvitation struct {
	tx    pgx.Tx
	inv   *models.Invitation
	scope models.Scope
}

func (l *lockedInvitation) Invitation() *models.Invitation { return l.inv }

func (l *lockedInvitation) ActiveMembership(ctx context.Context, userID string) (*models.Membership, error) {
	return getActiveMembership(ctx, l.tx, userID, l.scope)
}

func (l *lockedInvitation) CreateMembership(ctx context.Context, m *models.Membership) error {
	return insertMembership(ctx, l.tx, m)
}

func (l *lockedInvitation) Transition(ctx context.Context, status models.InvitationStatus, acceptedBy *string, at time.Time) error {
	if err := transitionInvitation(ctx, l.tx, l.inv.ID, status, acceptedBy, at); err != nil {
		return err
	}
	l.inv.Status = status
	l.inv.UpdatedAt = at
	if status == models.InvitationAccepted {
		l.inv.AcceptedBy = acceptedBy
		l.inv.AcceptedAt = &at
	}
	if status != models.InvitationExpired {
		l.inv.RespondedAt = &at
	}
	return nil
}

// LockInvitation runs fn in a transaction holding a row lock on the invitation with the given token.
// Everything fn writes commits together, or not at all if fn returns an error.
func (db *DB) LockInvitation(ctx context.Context, token string, fn func(ctx context.Context, itx InvitationTx) error) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		inv, err := scanInvitation(tx.QueryRow(ctx, `
			SELECT `+invitationColumns+`
			FROM invitations i
			WHERE i.token = $1
			FOR UPDATE
		`, token))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock invitation: %w", err)
		}

		scope, err := models.ScopeOf(inv)
		if err != nil {
			return fmt.Errorf("invitation %s: %w", inv.ID, err)
		}
		return fn(ctx, &lockedInvitation{tx: tx, inv: inv, scope: scope})
	})
}

// SweepExpiredInvitations marks pending invitations whose expiry has passed as expired.
func (db *DB) SweepExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE invitations
		SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}
