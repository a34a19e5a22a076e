// Package models defines the domain models for the tenancy service.
package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// IsValidSlug reports whether s is a lower-case, hyphen separated slug of at most 63 characters.
func IsValidSlug(s string) bool {
	return len(s) > 0 && len(s) <= 63 && slugPattern.MatchString(s)
}

// Organization represents a tenant organization.
type Organization struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description,omitempty"`
	LogoURL     string         `json:"logo_url,omitempty"`
	Settings    map[string]any `json:"settings"`
	IsActive    bool           `json:"is_active"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewOrganization creates a new active Organization created by the given user.
func NewOrganization(name, slug, createdBy string) *Organization {
	now := time.Now()
	return &Organization{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		Settings:  map[string]any{},
		IsActive:  true,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
