package db

import (
	"github.com/MacJediWizard/tenancy/internal/models"
)

// scanner is an interface for row scanning (pgx.Row, pgx.Rows).
type scanner interface {
	Scan(dest ...any) error
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Page describes limit/offset pagination.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// scopeColumn returns the column that holds the id of the given scope type.
// Only ever returns one of two constants, so callers may splice it into SQL.
func scopeColumn(scope models.Scope) string {
	if scope.IsTeam() {
		return "team_id"
	}
	return "organization_id"
}
