package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const organizationColumns = `id, name, slug, description, logo_url, settings, is_active, created_by, created_at, updated_at`

func scanOrganization(row scanner) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.Description, &org.LogoURL,
		&org.Settings, &org.IsActive, &org.CreatedBy, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if org.Settings == nil {
		org.Settings = map[string]any{}
	}
	return &org, nil
}

// CreateOrganizationWithOwner inserts the organization and its owner membership in one transaction.
func (db *DB) CreateOrganizationWithOwner(ctx context.Context, org *models.Organization, owner *models.Membership) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organizations (id, name, slug, description, logo_url, settings, is_active, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, org.ID, org.Name, org.Slug, org.Description, org.LogoURL, org.Settings,
			org.IsActive, org.CreatedBy, org.CreatedAt, org.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create organization %q: %w", org.Slug, ErrDuplicate)
			}
			return fmt.Errorf("create organization: %w", err)
		}

		if err := insertMembership(ctx, tx, owner); err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		return nil
	})
}

// GetOrganizationByID returns an organization by ID.
func (db *DB) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	org, err := scanOrganization(db.Pool.QueryRow(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

// UpdateOrganization updates the mutable fields of an organization.
func (db *DB) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE organizations
		SET name = $2, slug = $3, description = $4, logo_url = $5, settings = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
	`, org.ID, org.Name, org.Slug, org.Description, org.LogoURL, org.Settings, org.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update organization %q: %w", org.Slug, ErrDuplicate)
		}
		return fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOrganization removes an organization. Teams, memberships and invitations cascade.
func (db *DB) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
