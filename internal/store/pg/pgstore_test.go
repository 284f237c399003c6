package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"curia.org/internal/audit"
	"curia.org/internal/registry"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestCaseCreateIsTransactional(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("insert into cases").
		WithArgs("c-1", "2025-001", "Estate dispute", "", "open", "medium", "circle-1", "u-1", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into case_circle_links").
		WithArgs(sqlmock.AnyArg(), "c-1", "circle-1", "primary", now, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Cases(context.Background()).Create(context.Background(), &registry.Case{
		ID:              "c-1",
		CaseNumber:      "2025-001",
		Title:           "Estate dispute",
		Status:          registry.StatusOpen,
		Priority:        registry.PriorityMedium,
		PrimaryCircleID: "circle-1",
		CreatedBy:       "u-1",
		CreatedAt:       now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCaseCreateRollsBackOnLinkFailure(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("insert into cases").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into case_circle_links").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, ConstraintName: "case_circle_links_circle_id_fkey"})
	mock.ExpectRollback()

	err := store.Cases(context.Background()).Create(context.Background(), &registry.Case{
		ID: "c-1", CaseNumber: "2025-001", Title: "t", Status: registry.StatusOpen,
		Priority: registry.PriorityLow, PrimaryCircleID: "ghost", CreatedBy: "u-1", CreatedAt: now,
	})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for broken fk, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCaseNumberUniqueMapsToConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into cases").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "cases_case_number_key"})
	mock.ExpectRollback()

	err := store.Cases(context.Background()).Create(context.Background(), &registry.Case{
		ID: "c-2", CaseNumber: "2025-001", Title: "dup", Status: registry.StatusOpen,
		Priority: registry.PriorityLow, PrimaryCircleID: "circle-1", CreatedBy: "u-1",
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, registry.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLinkAddReportsCreated(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	link := &registry.CaseCircleLink{
		ID: "l-1", CaseID: "c-1", CircleID: "circle-2",
		Role: registry.LinkCollaborating, AddedAt: now, AddedBy: "u-1",
	}

	mock.ExpectExec("insert into case_circle_links").
		WithArgs("l-1", "c-1", "circle-2", "collaborating", now, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.Links(context.Background()).Add(context.Background(), link)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true for first insert")
	}

	// duplicate pair lands in on conflict do nothing
	mock.ExpectExec("insert into case_circle_links").
		WithArgs("l-2", "c-1", "circle-2", "collaborating", now, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	link.ID = "l-2"
	created, err = store.Links(context.Background()).Add(context.Background(), link)
	if err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for duplicate pair")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCaseFindNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select (.+) from cases").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.Cases(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListEntitledScansRows(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "case_number", "title", "description", "status", "priority",
		"primary_circle_id", "created_by", "assigned_judge", "created_at", "updated_at",
	}).
		AddRow("c-2", "2025-002", "Appeal", "", "open", "high", "circle-1", "u-1", nil, now, now).
		AddRow("c-1", "2025-001", "Dispute", "d", "in_progress", "low", "circle-9", "u-2", "j-1", now.Add(-time.Hour), now)

	mock.ExpectQuery("select (.+) from cases c").WithArgs("circle-1").WillReturnRows(rows)

	got, err := store.Cases(context.Background()).ListEntitled(context.Background(), "circle-1")
	if err != nil {
		t.Fatalf("ListEntitled: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(got))
	}
	if got[0].AssignedJudge != "" {
		t.Fatalf("nil judge should scan to empty string, got %q", got[0].AssignedJudge)
	}
	if got[1].AssignedJudge != "j-1" {
		t.Fatalf("assigned judge lost: %+v", got[1])
	}
}

func TestProfileUpdateBuildsSetClause(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	name := "Updated Name"

	rows := sqlmock.NewRows([]string{
		"id", "full_name", "role", "home_circle_id", "employee_id", "password_hash", "created_at",
	}).AddRow("u-1", name, "clerk", "circle-1", "EMP-1", "hash", now)

	mock.ExpectQuery("update user_profiles set full_name").
		WithArgs("u-1", name).
		WillReturnRows(rows)

	got, err := store.Profiles(context.Background()).Update(context.Background(), "u-1", registry.ProfileUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.FullName != name {
		t.Fatalf("full name = %q, want %q", got.FullName, name)
	}
}

func TestMessageUpdateContentSetsEditedAt(t *testing.T) {
	store, mock := newMock(t)
	created := time.Now().UTC().Add(-time.Hour)
	edited := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "thread_id", "content", "sender_id", "created_at", "edited_at"}).
		AddRow("m-1", "t-1", "revised", "u-1", created, edited)

	mock.ExpectQuery("update messages set content").
		WithArgs("m-1", "revised", edited).
		WillReturnRows(rows)

	got, err := store.Messages(context.Background()).UpdateContent(context.Background(), "m-1", "revised", edited)
	if err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	if got.EditedAt == nil || !got.EditedAt.Equal(edited) {
		t.Fatalf("edited_at not carried: %+v", got)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	trail := store.Audit()

	mock.ExpectExec("insert into audit_entries").
		WithArgs("a-1", sqlmock.AnyArg(), "case.view", "case", sqlmock.AnyArg(),
			[]byte(`{"decision":"denied"}`), sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := trail.Append(context.Background(), &audit.Entry{
		ID: "a-1", UserID: "u-1", Action: "case.view", ResourceType: "case",
		ResourceID: "c-1", Details: map[string]string{"decision": "denied"}, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "action", "resource_type", "resource_id",
		"details", "ip_address", "user_agent", "created_at",
	}).AddRow("a-1", "u-1", "case.view", "case", "c-1", []byte(`{"decision":"denied"}`), "", "", now)

	mock.ExpectQuery("select (.+) from audit_entries").
		WithArgs("u-1", 100).
		WillReturnRows(rows)

	got, err := trail.List(context.Background(), audit.Filter{UserID: "u-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Details["decision"] != "denied" {
		t.Fatalf("details lost: %+v", got[0].Details)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditListAppliesFilters(t *testing.T) {
	store, mock := newMock(t)
	trail := store.Audit()
	since := time.Now().UTC().Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "action", "resource_type", "resource_id",
		"details", "ip_address", "user_agent", "created_at",
	})
	mock.ExpectQuery("select (.+) from audit_entries where user_id = (.+) and action = (.+) and created_at >=").
		WithArgs("u-1", "case.view", since, 50, 10).
		WillReturnRows(rows)

	_, err := trail.List(context.Background(), audit.Filter{
		UserID: "u-1", Action: "case.view", Since: since, Limit: 50, Offset: 10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
