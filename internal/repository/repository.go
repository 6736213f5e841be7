// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository is the backing store for accounts. It is the authoritative
// guard for identity uniqueness.
type AccountRepository interface {
	// FindByIdentity loads an account by identity or returns errs.ErrNotFound.
	FindByIdentity(ctx context.Context, identity string) (*model.Account, error)
	// GetByID loads an account by ID or returns errs.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// Insert stores a new account. A taken identity yields errs.ErrAlreadyExists,
	// a taken non-empty username errs.ErrUsernameTaken.
	Insert(ctx context.Context, a *model.Account) error
	// UpdateCredential replaces the stored credential of an existing account.
	UpdateCredential(ctx context.Context, id uuid.UUID, c crypto.HashedCredential) error
}

// RefreshTokenRepository tracks live refresh tokens by their jti.
type RefreshTokenRepository interface {
	// Save registers a refresh token for the account until ttl elapses.
	Save(ctx context.Context, jti string, accountID uuid.UUID, ttl time.Duration) error
	// Consume atomically removes the jti and returns its owner, or errs.ErrNotFound.
	Consume(ctx context.Context, jti string) (uuid.UUID, error)
	// Revoke removes a single jti. Unknown ids are not an error.
	Revoke(ctx context.Context, jti string) error
	// RevokeAll removes every refresh token of the account.
	RevokeAll(ctx context.Context, accountID uuid.UUID) error
}
