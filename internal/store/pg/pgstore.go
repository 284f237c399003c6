// Package pg backs the case registry and the audit trail with Postgres.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"curia.org/internal/registry"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Tests use it with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", registry.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Circles(ctx context.Context) registry.CircleStore     { return circles{s.db} }
func (s *Store) Profiles(ctx context.Context) registry.ProfileStore   { return profiles{s.db} }
func (s *Store) Cases(ctx context.Context) registry.CaseStore         { return cases{s.db} }
func (s *Store) Links(ctx context.Context) registry.LinkStore         { return links{s.db} }
func (s *Store) Threads(ctx context.Context) registry.ThreadStore     { return threads{s.db} }
func (s *Store) Messages(ctx context.Context) registry.MessageStore   { return messages{s.db} }
func (s *Store) Documents(ctx context.Context) registry.DocumentStore { return documents{s.db} }

// writeErr maps constraint violations onto registry sentinels: a unique
// violation is a conflict, a broken foreign key means the referenced row
// does not exist.
func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s (%s)", registry.ErrConflict, op, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s (%s)", registry.ErrNotFound, op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
