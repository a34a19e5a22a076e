package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const teamColumns = `id, organization_id, parent_team_id, name, slug, description, settings, is_active, created_at, updated_at`

func scanTeam(row scanner) (*models.Team, error) {
	var t models.Team
	err := row.Scan(&t.ID, &t.OrganizationID, &t.ParentTeamID, &t.Name, &t.Slug,
		&t.Description, &t.Settings, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.Settings == nil {
		t.Settings = map[string]any{}
	}
	return &t, nil
}

// CreateTeam inserts a team and, when lead is non-nil, the creator's lead membership in one transaction.
func (db *DB) CreateTeam(ctx context.Context, team *models.Team, lead *models.Membership) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO teams (id, organization_id, parent_team_id, name, slug, description, settings, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, team.ID, team.OrganizationID, team.ParentTeamID, team.Name, team.Slug,
			team.Description, team.Settings, team.IsActive, team.CreatedAt, team.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create team %q: %w", team.Slug, ErrDuplicate)
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("create team parent: %w", ErrNotFound)
			}
			return fmt.Errorf("create team: %w", err)
		}

		if lead != nil {
			if err := insertMembership(ctx, tx, lead); err != nil {
				return fmt.Errorf("create lead membership: %w", err)
			}
		}
		return nil
	})
}

// GetTeamByID returns a team by ID.
func (db *DB) GetTeamByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	team, err := scanTeam(db.Pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return team, nil
}

// ListTeamsByOrganization returns the active teams of an organization ordered by name.
func (db *DB) ListTeamsByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Team, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+teamColumns+`
		FROM teams
		WHERE organization_id = $1 AND is_active = TRUE
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

// UpdateTeam updates the mutable fields of a team.
func (db *DB) UpdateTeam(ctx context.Context, team *models.Team) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE teams
		SET parent_team_id = $2, name = $3, slug = $4, description = $5, settings = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
	`, team.ID, team.ParentTeamID, team.Name, team.Slug, team.Description, team.Settings, team.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update team %q: %w", team.Slug, ErrDuplicate)
		}
		return fmt.Errorf("update team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTeam removes a team. Its memberships and invitations cascade; child teams are detached.
func (db *DB) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
