package postgres

import (
	"context"
	"errors"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements repository.AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const selectAccount = `
SELECT id, email, username, first_name, last_name, credential, created_at
FROM accounts`

const usernameConstraint = "accounts_username_uq"

// Insert adds a new account row. The unique indexes on email and username
// decide concurrent registrations: a taken username is errs.ErrUsernameTaken,
// any other clash errs.ErrAlreadyExists.
func (r *AccountRepo) Insert(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, email, username, first_name, last_name, credential)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		a.ID, a.Identity, a.Profile.Username, a.Profile.FirstName, a.Profile.LastName, a.Credential.Stored(),
	).Scan(&a.CreatedAt)
	if name, ok := uniqueViolation(err); ok {
		if name == usernameConstraint {
			return errs.ErrUsernameTaken
		}
		return errs.ErrAlreadyExists
	}
	return err
}

// FindByIdentity selects an account by email.
func (r *AccountRepo) FindByIdentity(ctx context.Context, identity string) (*model.Account, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectAccount+` WHERE email=$1`, identity))
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectAccount+` WHERE id=$1`, id))
}

// UpdateCredential overwrites the stored credential.
func (r *AccountRepo) UpdateCredential(ctx context.Context, id uuid.UUID, c crypto.HashedCredential) error {
	const q = `UPDATE accounts SET credential = $2 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, c.Stored())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) scanOne(row pgx.Row) (*model.Account, error) {
	var (
		a      model.Account
		stored string
	)
	err := row.Scan(&a.ID, &a.Identity, &a.Profile.Username, &a.Profile.FirstName, &a.Profile.LastName, &stored, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	a.Credential = crypto.Parse(stored)
	return &a, nil
}
