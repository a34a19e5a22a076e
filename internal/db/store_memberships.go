package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const membershipColumns = `m.id, m.user_id, m.email, m.organization_id, m.team_id, m.role, m.permissions,
	m.invited_by, m.is_active, m.joined_at, m.updated_at`

func scanMembership(row scanner, extra ...any) (*models.Membership, error) {
	var m models.Membership
	dest := append([]any{&m.ID, &m.UserID, &m.Email, &m.OrganizationID, &m.TeamID, &m.Role,
		&m.Permissions, &m.InvitedBy, &m.IsActive, &m.JoinedAt, &m.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if m.Permissions == nil {
		m.Permissions = map[string]bool{}
	}
	return &m, nil
}

func insertMembership(ctx context.Context, q querier, m *models.Membership) error {
	if _, err := models.ScopeOf(m); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `
		INSERT INTO memberships (id, user_id, email, organization_id, team_id, role, permissions, invited_by, is_active, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, m.ID, m.UserID, m.Email, m.OrganizationID, m.TeamID, m.Role, m.Permissions,
		m.InvitedBy, m.IsActive, m.JoinedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert membership: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func getActiveMembership(ctx context.Context, q querier, userID string, scope models.Scope) (*models.Membership, error) {
	m, err := scanMembership(q.QueryRow(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships m
		WHERE m.user_id = $1 AND m.`+scopeColumn(scope)+` = $2 AND m.is_active = TRUE
	`, userID, scope.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// CreateMembership inserts a membership. A second active membership for the
// same user and scope fails with ErrDuplicate.
func (db *DB) CreateMembership(ctx context.Context, m *models.Membership) error {
	return insertMembership(ctx, db.Pool, m)
}

// GetActiveMembership returns the user's active membership in the scope, or nil if there is none.
func (db *DB) GetActiveMembership(ctx context.Context, userID string, scope models.Scope) (*models.Membership, error) {
	return getActiveMembership(ctx, db.Pool, userID, scope)
}

// GetMembershipByID returns an active membership by ID.
func (db *DB) GetMembershipByID(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	m, err := scanMembership(db.Pool.QueryRow(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships m
		WHERE m.id = $1 AND m.is_active = TRUE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// HasActiveMemberWithEmail reports whether an active member of the scope was recorded with the email.
func (db *DB) HasActiveMemberWithEmail(ctx context.Context, email string, scope models.Scope) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM memberships
			WHERE email = $1 AND `+scopeColumn(scope)+` = $2 AND is_active = TRUE
		)
	`, strings.ToLower(email), scope.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check member email: %w", err)
	}
	return exists, nil
}

// ListMembershipsForUser returns a page of the user's active memberships joined with
// the display name of each organization or team, plus the total count.
func (db *DB) ListMembershipsForUser(ctx context.Context, userID string, page Page) ([]*models.MembershipWithScope, int, error) {
	page = page.Normalize()
	rows, err := db.Pool.Query(ctx, `
		SELECT `+membershipColumns+`,
		       COALESCE(o.name, t.name, ''), COALESCE(o.slug, t.slug, ''), COUNT(*) OVER()
		FROM memberships m
		LEFT JOIN organizations o ON o.id = m.organization_id
		LEFT JOIN teams t ON t.id = m.team_id
		WHERE m.user_id = $1 AND m.is_active = TRUE
		ORDER BY m.joined_at, m.id
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list memberships for user: %w", err)
	}
	defer rows.Close()

	var (
		result []*models.MembershipWithScope
		total  int
	)
	for rows.Next() {
		var name, slug string
		m, err := scanMembership(rows, &name, &slug, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan membership: %w", err)
		}
		scope, err := models.ScopeOf(m)
		if err != nil {
			return nil, 0, fmt.Errorf("membership %s: %w", m.ID, err)
		}
		result = append(result, &models.MembershipWithScope{
			Membership: *m,
			ScopeType:  scope.Type,
			ScopeName:  name,
			ScopeSlug:  slug,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate memberships: %w", err)
	}

	// COUNT(*) OVER() is absent when the page is past the end.
	if len(result) == 0 && page.Offset > 0 {
		if err := db.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM memberships WHERE user_id = $1 AND is_active = TRUE`, userID,
		).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count memberships for user: %w", err)
		}
	}
	return result, total, nil
}

// ListScopeMembers returns the active members of an organization or team.
func (db *DB) ListScopeMembers(ctx context.Context, scope models.Scope) ([]*models.Membership, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships m
		WHERE m.`+scopeColumn(scope)+` = $1 AND m.is_active = TRUE
		ORDER BY m.joined_at, m.id
	`, scope.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// ListOrganizationMembers returns the active members of an organization.
func (db *DB) ListOrganizationMembers(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	return db.ListScopeMembers(ctx, models.NewOrgScope(orgID))
}

// UpdateMembership updates the role and permissions of an active membership.
func (db *DB) UpdateMembership(ctx context.Context, m *models.Membership) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE memberships
		SET role = $2, permissions = $3, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE
	`, m.ID, m.Role, m.Permissions)
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateMembership soft-deletes a membership. Rows are kept for the audit trail.
func (db *DB) DeactivateMembership(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE memberships
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveOwners returns the number of active owners of an organization.
// The store does not enforce a minimum; callers use this to protect the last owner.
func (db *DB) CountActiveOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM memberships
		WHERE organization_id = $1 AND role = $2 AND is_active = TRUE
	`, orgID, models.OrgRoleOwner).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active owners: %w", err)
	}
	return count, nil
}
