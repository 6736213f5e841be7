// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time // access token expiry
	RefreshExpiresAt time.Time
}

// Profile holds the non-secret account fields supplied at registration.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// Account is a registered user. Identity is the email address and is unique.
type Account struct {
	ID         uuid.UUID // PK
	Identity   string    // unique, normalized email
	Profile    Profile
	Credential crypto.HashedCredential
	CreatedAt  time.Time
}

// VerifiedAccount is what a successful credential check hands to callers.
// It carries no credential material.
type VerifiedAccount struct {
	ID        uuid.UUID
	Identity  string
	Profile   Profile
	CreatedAt time.Time
}

// Verified strips the credential from the account.
func (a *Account) Verified() VerifiedAccount {
	return VerifiedAccount{ID: a.ID, Identity: a.Identity, Profile: a.Profile, CreatedAt: a.CreatedAt}
}
