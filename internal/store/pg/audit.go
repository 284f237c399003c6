package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"curia.org/internal/audit"
)

// Audit persists the append-only trail. The table has no update or delete
// path in this codebase; rows only accumulate.
type Audit struct {
	db *sql.DB
}

var _ audit.Store = (*Audit)(nil)

// Audit returns the trail store sharing this connection pool.
func (s *Store) Audit() *Audit { return &Audit{db: s.db} }

func (a *Audit) Append(ctx context.Context, e *audit.Entry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = raw
	}
	_, err := a.db.ExecContext(ctx, `
		insert into audit_entries (id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, nullIfEmpty(e.UserID), e.Action, e.ResourceType, nullIfEmpty(e.ResourceID),
		details, nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), e.CreatedAt)
	if err != nil {
		return writeErr("append audit entry", err)
	}
	return nil
}

func (a *Audit) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}

	q := `
		select id, coalesce(user_id, ''), action, resource_type, coalesce(resource_id, ''), details, coalesce(ip_address, ''), coalesce(user_agent, ''), created_at
		from audit_entries
	`
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" order by created_at desc, id desc limit $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" offset $%d", len(args))
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e   audit.Entry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &raw, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		if len(e.Details) == 0 {
			e.Details = nil
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
