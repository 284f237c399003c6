package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"curia.org/internal/ids"
	"curia.org/internal/registry"
)

type circles struct{ db *sql.DB }

func (c circles) Create(ctx context.Context, circle *registry.Circle) error {
	_, err := c.db.ExecContext(ctx, `
		insert into circles (id, name, description, created_at)
		values ($1, $2, $3, $4)
	`, circle.ID, circle.Name, circle.Description, circle.CreatedAt)
	if err != nil {
		return writeErr("create circle", err)
	}
	return nil
}

func (c circles) Find(ctx context.Context, id string) (*registry.Circle, error) {
	var out registry.Circle
	err := c.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from circles
		where id = $1
	`, id).Scan(&out.ID, &out.Name, &out.Description, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: circle %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c circles) List(ctx context.Context) ([]*registry.Circle, error) {
	rows, err := c.db.QueryContext(ctx, `
		select id, name, description, created_at
		from circles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Circle
	for rows.Next() {
		var circle registry.Circle
		if err := rows.Scan(&circle.ID, &circle.Name, &circle.Description, &circle.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &circle)
	}
	return out, rows.Err()
}

type profiles struct{ db *sql.DB }

const profileColumns = `id, full_name, role, home_circle_id, employee_id, password_hash, created_at`

func scanProfile(row interface{ Scan(...any) error }) (*registry.UserProfile, error) {
	var p registry.UserProfile
	err := row.Scan(&p.ID, &p.FullName, &p.Role, &p.HomeCircleID, &p.EmployeeID, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (p profiles) Create(ctx context.Context, profile *registry.UserProfile) error {
	_, err := p.db.ExecContext(ctx, `
		insert into user_profiles (id, full_name, role, home_circle_id, employee_id, password_hash, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, profile.ID, profile.FullName, profile.Role, profile.HomeCircleID, profile.EmployeeID, profile.PasswordHash, profile.CreatedAt)
	if err != nil {
		return writeErr("create profile", err)
	}
	return nil
}

func (p profiles) Find(ctx context.Context, id string) (*registry.UserProfile, error) {
	row := p.db.QueryRowContext(ctx, `
		select `+profileColumns+`
		from user_profiles
		where id = $1
	`, id)
	out, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p profiles) FindByEmployeeID(ctx context.Context, employeeID string) (*registry.UserProfile, error) {
	row := p.db.QueryRowContext(ctx, `
		select `+profileColumns+`
		from user_profiles
		where employee_id = $1
	`, employeeID)
	out, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: employee id %s", registry.ErrNotFound, employeeID)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p profiles) ListByCircle(ctx context.Context, circleID string) ([]*registry.UserProfile, error) {
	rows, err := p.db.QueryContext(ctx, `
		select `+profileColumns+`
		from user_profiles
		where home_circle_id = $1
		order by full_name
	`, circleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}

func (p profiles) Update(ctx context.Context, id string, upd registry.ProfileUpdate) (*registry.UserProfile, error) {
	var sets []string
	args := []any{id}
	if upd.FullName != nil {
		args = append(args, *upd.FullName)
		sets = append(sets, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if upd.PasswordHash != nil {
		args = append(args, *upd.PasswordHash)
		sets = append(sets, fmt.Sprintf("password_hash = $%d", len(args)))
	}
	if len(sets) == 0 {
		return p.Find(ctx, id)
	}
	row := p.db.QueryRowContext(ctx, `
		update user_profiles set `+strings.Join(sets, ", ")+`
		where id = $1
		returning `+profileColumns, args...)
	out, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, writeErr("update profile", err)
	}
	return out, nil
}

type cases struct{ db *sql.DB }

const caseColumns = `id, case_number, title, description, status, priority, primary_circle_id, created_by, assigned_judge, created_at, updated_at`

func scanCase(row interface{ Scan(...any) error }) (*registry.Case, error) {
	var (
		c     registry.Case
		judge sql.NullString
	)
	err := row.Scan(&c.ID, &c.CaseNumber, &c.Title, &c.Description, &c.Status, &c.Priority,
		&c.PrimaryCircleID, &c.CreatedBy, &judge, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.AssignedJudge = judge.String
	return &c, nil
}

// Create inserts the case together with its primary circle link, in one
// transaction. There is no state in which the case exists but its primary
// circle is not entitled.
func (c cases) Create(ctx context.Context, cs *registry.Case) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into cases (id, case_number, title, description, status, priority, primary_circle_id, created_by, assigned_judge, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, cs.ID, cs.CaseNumber, cs.Title, cs.Description, cs.Status, cs.Priority,
		cs.PrimaryCircleID, cs.CreatedBy, nullIfEmpty(cs.AssignedJudge), cs.CreatedAt); err != nil {
		return writeErr("create case", err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into case_circle_links (id, case_id, circle_id, role, added_at, added_by)
		values ($1, $2, $3, $4, $5, $6)
	`, ids.New(), cs.ID, cs.PrimaryCircleID, registry.LinkPrimary, cs.CreatedAt, cs.CreatedBy); err != nil {
		return writeErr("create primary link", err)
	}
	return tx.Commit()
}

func (c cases) Find(ctx context.Context, id string) (*registry.Case, error) {
	row := c.db.QueryRowContext(ctx, `
		select `+caseColumns+`
		from cases
		where id = $1
	`, id)
	out, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: case %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c cases) FindByNumber(ctx context.Context, caseNumber string) (*registry.Case, error) {
	row := c.db.QueryRowContext(ctx, `
		select `+caseColumns+`
		from cases
		where case_number = $1
	`, caseNumber)
	out, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: case number %s", registry.ErrNotFound, caseNumber)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListEntitled returns cases the circle can see: those where it is primary
// or holds a link. The primary clause is redundant while the creation
// invariant holds; it keeps the query correct against imported data.
func (c cases) ListEntitled(ctx context.Context, circleID string) ([]*registry.Case, error) {
	rows, err := c.db.QueryContext(ctx, `
		select `+caseColumns+`
		from cases c
		where c.primary_circle_id = $1
		   or exists (
			select 1 from case_circle_links l
			where l.case_id = c.id and l.circle_id = $1
		   )
		order by c.created_at desc, c.id
	`, circleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Case
	for rows.Next() {
		cs, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (c cases) Update(ctx context.Context, id string, upd registry.CaseUpdate) (*registry.Case, error) {
	var sets []string
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Priority != nil {
		add("priority", *upd.Priority)
	}
	if upd.AssignedJudge != nil {
		add("assigned_judge", nullIfEmpty(*upd.AssignedJudge))
	}
	if len(sets) == 0 {
		return c.Find(ctx, id)
	}
	add("updated_at", time.Now().UTC())
	row := c.db.QueryRowContext(ctx, `
		update cases set `+strings.Join(sets, ", ")+`
		where id = $1
		returning `+caseColumns, args...)
	out, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: case %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, writeErr("update case", err)
	}
	return out, nil
}

type links struct{ db *sql.DB }

// Add inserts the link unless the (case, circle) pair already holds one.
// The unique constraint makes concurrent duplicate adds race-safe: exactly
// one insert reports a created row.
func (l links) Add(ctx context.Context, link *registry.CaseCircleLink) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		insert into case_circle_links (id, case_id, circle_id, role, added_at, added_by)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (case_id, circle_id) do nothing
	`, link.ID, link.CaseID, link.CircleID, link.Role, link.AddedAt, link.AddedBy)
	if err != nil {
		return false, writeErr("add link", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l links) ListByCase(ctx context.Context, caseID string) ([]*registry.CaseCircleLink, error) {
	rows, err := l.db.QueryContext(ctx, `
		select id, case_id, circle_id, role, added_at, added_by
		from case_circle_links
		where case_id = $1
		order by added_at, id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.CaseCircleLink
	for rows.Next() {
		var link registry.CaseCircleLink
		if err := rows.Scan(&link.ID, &link.CaseID, &link.CircleID, &link.Role, &link.AddedAt, &link.AddedBy); err != nil {
			return nil, err
		}
		out = append(out, &link)
	}
	return out, rows.Err()
}

type threads struct{ db *sql.DB }

func (t threads) Create(ctx context.Context, th *registry.Thread) error {
	_, err := t.db.ExecContext(ctx, `
		insert into threads (id, case_id, title, created_by, created_at)
		values ($1, $2, $3, $4, $5)
	`, th.ID, th.CaseID, th.Title, th.CreatedBy, th.CreatedAt)
	if err != nil {
		return writeErr("create thread", err)
	}
	return nil
}

func (t threads) Find(ctx context.Context, id string) (*registry.Thread, error) {
	var out registry.Thread
	err := t.db.QueryRowContext(ctx, `
		select id, case_id, title, created_by, created_at
		from threads
		where id = $1
	`, id).Scan(&out.ID, &out.CaseID, &out.Title, &out.CreatedBy, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: thread %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (t threads) ListByCase(ctx context.Context, caseID string) ([]*registry.Thread, error) {
	rows, err := t.db.QueryContext(ctx, `
		select id, case_id, title, created_by, created_at
		from threads
		where case_id = $1
		order by created_at, id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Thread
	for rows.Next() {
		var th registry.Thread
		if err := rows.Scan(&th.ID, &th.CaseID, &th.Title, &th.CreatedBy, &th.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &th)
	}
	return out, rows.Err()
}

type messages struct{ db *sql.DB }

func scanMessage(row interface{ Scan(...any) error }) (*registry.Message, error) {
	var m registry.Message
	err := row.Scan(&m.ID, &m.ThreadID, &m.Content, &m.SenderID, &m.CreatedAt, &m.EditedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m messages) Create(ctx context.Context, msg *registry.Message) error {
	_, err := m.db.ExecContext(ctx, `
		insert into messages (id, thread_id, content, sender_id, created_at)
		values ($1, $2, $3, $4, $5)
	`, msg.ID, msg.ThreadID, msg.Content, msg.SenderID, msg.CreatedAt)
	if err != nil {
		return writeErr("create message", err)
	}
	return nil
}

func (m messages) Find(ctx context.Context, id string) (*registry.Message, error) {
	row := m.db.QueryRowContext(ctx, `
		select id, thread_id, content, sender_id, created_at, edited_at
		from messages
		where id = $1
	`, id)
	out, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m messages) ListByThread(ctx context.Context, threadID string) ([]*registry.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
		select id, thread_id, content, sender_id, created_at, edited_at
		from messages
		where thread_id = $1
		order by created_at, id
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (m messages) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (*registry.Message, error) {
	row := m.db.QueryRowContext(ctx, `
		update messages set content = $2, edited_at = $3
		where id = $1
		returning id, thread_id, content, sender_id, created_at, edited_at
	`, id, content, editedAt)
	out, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

type documents struct{ db *sql.DB }

func (d documents) Create(ctx context.Context, doc *registry.Document) error {
	_, err := d.db.ExecContext(ctx, `
		insert into documents (id, case_id, file_name, file_path, file_type, file_size, extracted_text, uploaded_by, uploaded_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, doc.ID, doc.CaseID, doc.FileName, doc.FilePath, doc.FileType, doc.FileSize, doc.ExtractedText, doc.UploadedBy, doc.UploadedAt)
	if err != nil {
		return writeErr("create document", err)
	}
	return nil
}

func (d documents) Find(ctx context.Context, id string) (*registry.Document, error) {
	var out registry.Document
	err := d.db.QueryRowContext(ctx, `
		select id, case_id, file_name, file_path, file_type, file_size, extracted_text, uploaded_by, uploaded_at
		from documents
		where id = $1
	`, id).Scan(&out.ID, &out.CaseID, &out.FileName, &out.FilePath, &out.FileType, &out.FileSize, &out.ExtractedText, &out.UploadedBy, &out.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (d documents) ListByCase(ctx context.Context, caseID string) ([]*registry.Document, error) {
	rows, err := d.db.QueryContext(ctx, `
		select id, case_id, file_name, file_path, file_type, file_size, extracted_text, uploaded_by, uploaded_at
		from documents
		where case_id = $1
		order by uploaded_at, id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Document
	for rows.Next() {
		var doc registry.Document
		if err := rows.Scan(&doc.ID, &doc.CaseID, &doc.FileName, &doc.FilePath, &doc.FileType, &doc.FileSize, &doc.ExtractedText, &doc.UploadedBy, &doc.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, &doc)
	}
	return out, rows.Err()
}
