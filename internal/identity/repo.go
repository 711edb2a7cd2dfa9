package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumora-social/lumora/internal/platform/db"
)

// Repository defines persistence operations for accounts. Every method
// participates in the unit of work opened by WithTx when one is active.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, acct *Account) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	RecordLogin(ctx context.Context, id string, at time.Time) (bool, error)
}

// Unique index names on the accounts table. The storage layer, not the
// application pre-check, is the authority on uniqueness.
const (
	constraintEmail    = "uq_accounts_email"
	constraintUsername = "uq_accounts_username"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool, pool: pool}
}

// WithTx runs fn against a transaction-scoped repository. Nested calls
// join the transaction already open in the context.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &PGRepository{db: tx, pool: r.pool})
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

const accountColumns = `id, email, username, credential_digest, display_name, city, region, country, role, is_active, created_at, updated_at, last_login_at`

// Create inserts a new account row. A unique-index violation surfaces
// as *ConflictError naming the colliding field.
func (r *PGRepository) Create(ctx context.Context, acct *Account) (*Account, error) {
	const query = `
		INSERT INTO accounts (id, email, username, credential_digest, display_name, city, region, country, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING ` + accountColumns

	row := r.db.QueryRow(ctx, query,
		acct.ID, acct.Email, acct.Username, acct.CredentialDigest,
		acct.DisplayName, acct.City, acct.Region, acct.Country,
		acct.Role, acct.Active, acct.CreatedAt.UTC(),
	)
	created, err := scanAccount(row)
	if err != nil {
		return nil, classify(err)
	}
	return created, nil
}

// FindByEmail fetches an account by email, credential digest included,
// in a single read.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, "email = $1", email)
}

// FindByUsername fetches an account by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return r.findOne(ctx, "username = $1", username)
}

// FindByID fetches an account by its identifier.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *PGRepository) findOne(ctx context.Context, where string, arg any) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	acct, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(err)
	}
	return acct, nil
}

// RecordLogin stamps last_login_at and reports whether a row matched.
func (r *PGRepository) RecordLogin(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE accounts SET last_login_at = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, at.UTC())
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		acct      Account
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		lastLogin pgtype.Timestamptz
	)
	err := row.Scan(
		&acct.ID, &acct.Email, &acct.Username, &acct.CredentialDigest,
		&acct.DisplayName, &acct.City, &acct.Region, &acct.Country,
		&acct.Role, &acct.Active, &createdAt, &updatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	acct.CreatedAt = createdAt.Time
	acct.UpdatedAt = updatedAt.Time
	if lastLogin.Valid {
		t := lastLogin.Time
		acct.LastLoginAt = &t
	}
	return &acct, nil
}

// classify maps storage-native failures onto the repository's error
// surface: unique violations become *ConflictError, connectivity and
// timeout failures become ErrStoreUnavailable, everything else passes
// through wrapped as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return &ConflictError{Constraint: pgErr.ConstraintName, Field: conflictField(pgErr.ConstraintName)}
		}
		// Class 08: connection exception. Class 53: insufficient
		// resources. Class 57: operator intervention (server shutdown).
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") || strings.HasPrefix(pgErr.Code, "57") {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func conflictField(constraint string) string {
	switch constraint {
	case constraintEmail:
		return "email"
	case constraintUsername:
		return "username"
	default:
		if strings.Contains(constraint, "username") {
			return "username"
		}
		if strings.Contains(constraint, "email") {
			return "email"
		}
		return ""
	}
}

var _ Repository = (*PGRepository)(nil)
