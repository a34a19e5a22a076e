package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/tenancy/internal/models"
	"github.com/jackc/pgx/v5"
)

// AuditLogFilter narrows a scope's audit trail. Zero fields match everything.
type AuditLogFilter struct {
	Action       string
	ResourceType string
	ActorID      string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}

const auditLogColumns = `id, actor_id, action, resource_type, resource_id, organization_id,
	team_id, metadata, ip_address, user_agent, created_at`

// conditions accumulates AND-ed predicates with positional arguments.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(expr, len(c.args)))
}

func (c *conditions) where() string {
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func auditLogConditions(scope models.Scope, f AuditLogFilter) *conditions {
	c := &conditions{}
	c.add(scopeColumn(scope)+" = $%d", scope.ID)
	if f.Action != "" {
		c.add("action = $%d", f.Action)
	}
	if f.ResourceType != "" {
		c.add("resource_type = $%d", f.ResourceType)
	}
	if f.ActorID != "" {
		c.add("actor_id = $%d", f.ActorID)
	}
	if f.StartDate != nil {
		c.add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		c.add("created_at <= $%d", *f.EndDate)
	}
	return c
}

func scanAuditLog(row pgx.CollectableRow) (*models.AuditLog, error) {
	var l models.AuditLog
	err := row.Scan(&l.ID, &l.ActorID, &l.Action, &l.ResourceType, &l.ResourceID,
		&l.OrganizationID, &l.TeamID, &l.Metadata, &l.IPAddress, &l.UserAgent, &l.CreatedAt)
	return &l, err
}

// CreateAuditLog appends an entry. The table has no update or delete path.
func (db *DB) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO audit_logs (`+auditLogColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.ActorID, string(entry.Action), entry.ResourceType, entry.ResourceID,
		entry.OrganizationID, entry.TeamID, entry.Metadata, entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns one page of a scope's entries, newest first.
func (db *DB) ListAuditLogs(ctx context.Context, scope models.Scope, filter AuditLogFilter) ([]*models.AuditLog, error) {
	c := auditLogConditions(scope, filter)
	page := Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	n := len(c.args)
	query := `SELECT ` + auditLogColumns + ` FROM audit_logs` + c.where() +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", n+1, n+2)

	rows, err := db.Pool.Query(ctx, query, append(c.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, scanAuditLog)
	if err != nil {
		return nil, fmt.Errorf("scan audit logs: %w", err)
	}
	return logs, nil
}

// CountAuditLogs counts a scope's entries matching filter, ignoring paging.
func (db *DB) CountAuditLogs(ctx context.Context, scope models.Scope, filter AuditLogFilter) (int64, error) {
	c := auditLogConditions(scope, filter)

	var count int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+c.where(), c.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit logs: %w", err)
	}
	return count, nil
}
