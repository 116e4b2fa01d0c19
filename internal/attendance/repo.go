package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RemoteStore is the hosted record collection the Manager keeps in sync with.
type RemoteStore interface {
	// ListAll returns every entry, newest first.
	ListAll(ctx context.Context) ([]Entry, error)
	// Insert creates an entry and returns it with its assigned ID and timestamp.
	// A phone number that is already registered yields ErrDuplicate.
	Insert(ctx context.Context, s Submission) (Entry, error)
	// LookupByPhone returns the most recent entry for phone, or nil.
	LookupByPhone(ctx context.Context, phone string) (*Entry, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) error
}

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// Repository persists entries in Postgres.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository creates a repo over the given table.
func NewRepository(db *sql.DB, table string) *Repository {
	if table == "" {
		table = "youth_attendance"
	}
	return &Repository{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the attendance table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+r.table+` (
			id          TEXT PRIMARY KEY,
			first_name  TEXT NOT NULL,
			last_name   TEXT NOT NULL,
			other_names TEXT,
			phone       TEXT NOT NULL UNIQUE,
			gender      TEXT CHECK (gender IN ('Male', 'Female')),
			timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

const entryColumns = `id, first_name, last_name, other_names, phone, gender, timestamp`

// ListAll returns all entries ordered by timestamp descending.
func (r *Repository) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM `+r.table+` ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	res := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Insert writes a new entry. The timestamp comes from the database clock.
func (r *Repository) Insert(ctx context.Context, s Submission) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO `+r.table+` (id, first_name, last_name, other_names, phone, gender)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+entryColumns,
		uuid.NewString(), s.FirstName, s.LastName, nullString(s.OtherNames), s.Phone, nullString(string(s.Gender)))
	e, err := scanEntry(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Entry{}, ErrDuplicate
		}
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// LookupByPhone returns the newest entry registered with phone.
func (r *Repository) LookupByPhone(ctx context.Context, phone string) (*Entry, error) {
	if phone == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM `+r.table+`
		WHERE phone = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, phone)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup by phone: %w", err)
	}
	return &e, nil
}

// DeleteByIDs removes every entry whose id is in ids in one statement.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	return nil
}

// DeleteAll lists every id and deletes them.
func (r *Repository) DeleteAll(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM `+r.table)
	if err != nil {
		return fmt.Errorf("list ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	return r.DeleteByIDs(ctx, ids)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e      Entry
		other  sql.NullString
		gender sql.NullString
	)
	if err := s.Scan(&e.ID, &e.FirstName, &e.LastName, &other, &e.Phone, &gender, &e.Timestamp); err != nil {
		return Entry{}, err
	}
	e.OtherNames = other.String
	e.Gender = Gender(gender.String)
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation reports whether err is a Postgres unique violation. Errors without a
// SQLSTATE fall back to the message text.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate")
}
