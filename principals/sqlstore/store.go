// Package sqlstore implements the principal directory over PostgreSQL (pgx) or
// SQLite (modernc). The email uniqueness constraint plus an
// INSERT ... ON CONFLICT upsert keeps concurrent first logins to one row.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jrsteele09/go-login-bridge/internal/utils"
	"github.com/jrsteele09/go-login-bridge/principals"
	_ "modernc.org/sqlite"
)

var _ principals.Directory = (*Store)(nil)

const principalColumns = `id, email, name, last_login_ms, is_active, is_admin, created_at_ms`

const upsertOnLoginQuery = `
INSERT INTO principals (id, email, name, last_login_ms, is_active, is_admin, created_at_ms)
VALUES (?, ?, ?, ?, TRUE, FALSE, ?)
ON CONFLICT (email) DO UPDATE SET
    name = COALESCE(NULLIF(?, ''), principals.name),
    last_login_ms = excluded.last_login_ms
RETURNING ` + principalColumns

// Store is a database/sql backed directory.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to databaseURL and applies the embedded migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	t, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if err := migrateUp(t.migrateURL); err != nil {
		return nil, err
	}

	db, err := sql.Open(t.driverName, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", t.driverName, err)
	}
	if t.dialect == dialectSQLite {
		// SQLite allows one writer; serialise through a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", t.driverName, err)
	}
	return &Store{db: db, dialect: t.dialect}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*principals.Principal, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+principalColumns+` FROM principals WHERE email = ?`), email)
	return scanOptional(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*principals.Principal, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+principalColumns+` FROM principals WHERE id = ?`), id)
	return scanOptional(row)
}

// UpsertOnLogin runs as one statement, so a failure leaves nothing behind.
func (s *Store) UpsertOnLogin(ctx context.Context, email, name string, now time.Time) (*principals.Principal, error) {
	if email == "" {
		return nil, errors.New("email is required")
	}
	nowMs := toMillis(now)
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(upsertOnLoginQuery),
		uuid.New().String(),
		email,
		principals.DisplayName(email, name),
		nowMs,
		nowMs,
		name,
	)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, fmt.Errorf("upsert principal: %w", err)
	}
	return p, nil
}

// SetAdmin sets the privileged flag. Only the administrative path calls it.
func (s *Store) SetAdmin(ctx context.Context, email string, admin bool) error {
	return s.execOne(ctx, `UPDATE principals SET is_admin = ? WHERE email = ?`, admin, email)
}

// Delete removes the principal for email. Only the administrative path calls it.
func (s *Store) Delete(ctx context.Context, email string) error {
	return s.execOne(ctx, `DELETE FROM principals WHERE email = ?`, email)
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOptional(row rowScanner) (*principals.Principal, error) {
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func scanPrincipal(row rowScanner) (*principals.Principal, error) {
	var (
		p         principals.Principal
		lastLogin sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &lastLogin, &p.IsActive, &p.IsAdmin, &createdAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		p.LastLogin = utils.Ptr(fromMillis(lastLogin.Int64))
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
