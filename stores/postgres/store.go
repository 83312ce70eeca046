// Package postgres is an account.Store backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/MrEthical07/credcore/account"
)

// Schema creates the table this store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS credential_records (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	status        TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	national_id   TEXT UNIQUE,
	phone         TEXT UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

const selectColumns = `
	SELECT id, email, password_hash, role, status, display_name,
	       COALESCE(national_id, ''), COALESCE(phone, ''), created_at, updated_at
	FROM credential_records`

// Pool is the subset of *pgxpool.Pool used by Store.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements account.Store.
type Store struct {
	pool Pool
	now  func() time.Time
}

// New returns a Store over pool.
func New(pool Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return oops.Code("STORE_MIGRATE_FAILED").With("operation", "create table").Wrap(err)
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Record, error) {
	return s.findOne(ctx, "email", selectColumns+` WHERE email = $1`, account.NormalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Record, error) {
	return s.findOne(ctx, "id", selectColumns+` WHERE id = $1`, id)
}

func (s *Store) FindByNationalID(ctx context.Context, nationalID string) (*account.Record, error) {
	return s.findOne(ctx, "national_id", selectColumns+` WHERE national_id = $1`, nationalID)
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (*account.Record, error) {
	return s.findOne(ctx, "phone", selectColumns+` WHERE phone = $1`, phone)
}

func (s *Store) findOne(ctx context.Context, field, query string, value string) (*account.Record, error) {
	var (
		r      account.Record
		role   string
		status string
	)
	err := s.pool.QueryRow(ctx, query, value).Scan(
		&r.ID, &r.Email, &r.PasswordHash, &role, &status, &r.DisplayName,
		&r.NationalID, &r.Phone, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_LOOKUP_FAILED").
			With("operation", "find credential record").
			With("field", field).
			Wrap(err)
	}
	r.Role = account.Role(role)
	r.Status = account.Status(status)
	return &r, nil
}

// Insert assigns a ULID when r.ID is empty.
func (s *Store) Insert(ctx context.Context, r account.Record) (string, error) {
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO credential_records (
			id, email, password_hash, role, status, display_name,
			national_id, phone, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
	`,
		r.ID,
		account.NormalizeEmail(r.Email),
		r.PasswordHash,
		string(r.Role),
		string(r.Status),
		r.DisplayName,
		r.NationalID,
		r.Phone,
		r.CreatedAt,
		now,
	)
	if isUniqueViolation(err) {
		return "", account.ErrDuplicate
	}
	if err != nil {
		return "", oops.Code("STORE_INSERT_FAILED").
			With("operation", "insert credential record").
			Wrap(err)
	}
	return r.ID, nil
}

func (s *Store) Update(ctx context.Context, id string, u account.Update) error {
	if u.IsEmpty() {
		return nil
	}

	var email, status *string
	if u.Email != nil {
		e := account.NormalizeEmail(*u.Email)
		email = &e
	}
	if u.Status != nil {
		st := string(*u.Status)
		status = &st
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE credential_records
		SET email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    status = COALESCE($4, status),
		    updated_at = $5
		WHERE id = $1
	`, id, email, u.PasswordHash, status, s.now())
	if isUniqueViolation(err) {
		return account.ErrDuplicate
	}
	if err != nil {
		return oops.Code("STORE_UPDATE_FAILED").
			With("operation", "update credential record").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
