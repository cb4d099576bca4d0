package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arale275/autix-sub003/auth"
)

// UserRecord is the persisted form of an account. PasswordHash is empty for
// accounts created through federated login.
type UserRecord struct {
	ID           int64
	Email        string
	PasswordHash string
	UserType     auth.UserType
	GoogleSub    string
	CreatedAt    time.Time
}

// User projects the record to its public form.
func (r UserRecord) User() auth.User {
	return auth.User{ID: r.ID, Email: r.Email, UserType: r.UserType}
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, id int64) (*UserRecord, error)
	Create(ctx context.Context, email, passwordHash string, userType auth.UserType) (*UserRecord, error)
	UpsertGoogle(ctx context.Context, sub, email string, userType auth.UserType) (*UserRecord, error)
}

// PgUserRepository implements UserRepository using pgxpool.
//
// Expected table:
//
//	users(id bigserial primary key, email text unique not null, password_hash text not null default '',
//	      user_type text not null, google_sub text unique, created_at timestamptz not null default now())
type PgUserRepository struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

// NewPgUserRepository bounds every call, connection acquire included, by
// timeout. A non-positive timeout leaves calls bounded only by their context.
func NewPgUserRepository(db *pgxpool.Pool, timeout time.Duration) *PgUserRepository {
	return &PgUserRepository{db: db, timeout: timeout}
}

func (r *PgUserRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

const userColumns = `id, email, password_hash, user_type, COALESCE(google_sub, ''), created_at`

func scanUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	var userType string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &userType, &u.GoogleSub, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.UserType = auth.UserType(userType)
	return &u, nil
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*UserRecord, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *PgUserRepository) Create(ctx context.Context, email, passwordHash string, userType auth.UserType) (*UserRecord, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	const q = `INSERT INTO users (email, password_hash, user_type) VALUES ($1,$2,$3) RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, q, email, passwordHash, string(userType)))
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	return u, err
}

// UpsertGoogle returns the account linked to sub. An existing password account
// with the same email is linked and keeps its user type.
func (r *PgUserRepository) UpsertGoogle(ctx context.Context, sub, email string, userType auth.UserType) (*UserRecord, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_sub=$1`, sub)); !errors.Is(err, ErrUserNotFound) {
		return u, err
	}
	const q = `INSERT INTO users (email, user_type, google_sub) VALUES ($1,$2,$3)
ON CONFLICT (email) DO UPDATE SET google_sub = COALESCE(users.google_sub, EXCLUDED.google_sub)
RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, q, email, string(userType), sub))
	if err != nil {
		return nil, err
	}
	if u.GoogleSub != sub {
		// email already linked to a different provider account
		return nil, ErrEmailTaken
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
