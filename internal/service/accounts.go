package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/repository"
)

// CredentialHasher hashes and verifies passwords. *crypto.Bounded implements it.
type CredentialHasher interface {
	Hash(ctx context.Context, plaintext string) (crypto.HashedCredential, error)
	Verify(ctx context.Context, plaintext string, stored crypto.HashedCredential) (bool, error)
}

// Accounts ties the account lifecycle to the credential hasher. A password is
// hashed exactly once per create or change and only ever leaves here as a
// crypto.HashedCredential, so an already hashed value cannot be hashed again.
type Accounts struct {
	repo   repository.AccountRepository
	hasher CredentialHasher
	log    *zap.Logger

	// dummy is verified against on unknown identities so both failure paths cost the same.
	dummy crypto.HashedCredential
}

// NewAccounts constructs the account credential store.
func NewAccounts(ctx context.Context, repo repository.AccountRepository, hasher CredentialHasher, log *zap.Logger) (*Accounts, error) {
	seed, err := crypto.RandBytes(18)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(ctx, base64.RawStdEncoding.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("dummy credential: %w", err)
	}
	return &Accounts{repo: repo, hasher: hasher, log: log.Named("audit"), dummy: dummy}, nil
}

// NormalizeIdentity trims the address and lowercases its domain part.
func NormalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	at := strings.LastIndexByte(identity, '@')
	if at < 0 {
		return identity
	}
	return identity[:at+1] + strings.ToLower(identity[at+1:])
}

// Create registers a new account. The uniqueness pre-check runs before any
// hashing; the store's unique index settles concurrent registrations.
func (s *Accounts) Create(ctx context.Context, identity, plaintext string, profile model.Profile) (model.VerifiedAccount, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" || plaintext == "" {
		return model.VerifiedAccount{}, fmt.Errorf("%w: empty identity/password", errs.ErrValidation)
	}

	_, err := s.repo.FindByIdentity(ctx, identity)
	switch {
	case err == nil:
		s.audit("register", identity, "duplicate_identity")
		return model.VerifiedAccount{}, errs.ErrDuplicateIdentity
	case !errors.Is(err, errs.ErrNotFound):
		return model.VerifiedAccount{}, fmt.Errorf("lookup identity: %w", err)
	}

	cred, err := s.hashOnce(ctx, plaintext)
	if err != nil {
		return model.VerifiedAccount{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.VerifiedAccount{}, err
	}

	a := &model.Account{ID: id, Identity: identity, Profile: profile, Credential: cred}
	if err := s.repo.Insert(ctx, a); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			s.audit("register", identity, "duplicate_identity")
			return model.VerifiedAccount{}, errs.ErrDuplicateIdentity
		}
		if errors.Is(err, errs.ErrUsernameTaken) {
			s.audit("register", identity, "username_taken")
			return model.VerifiedAccount{}, errs.ErrUsernameTaken
		}
		return model.VerifiedAccount{}, fmt.Errorf("insert account: %w", err)
	}

	s.audit("register", identity, "created", zap.Stringer("account_id", a.ID))
	return a.Verified(), nil
}

// Verify checks plaintext against the stored credential of identity.
// Failures are ErrUnknownIdentity, ErrInvalidCredential or ErrCorruptCredential;
// callers must not tell them apart externally.
func (s *Accounts) Verify(ctx context.Context, identity, plaintext string) (model.VerifiedAccount, error) {
	identity = NormalizeIdentity(identity)

	a, err := s.repo.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			_, _ = s.hasher.Verify(ctx, plaintext, s.dummy)
			s.audit("login", identity, "unknown_identity")
			return model.VerifiedAccount{}, errs.ErrUnknownIdentity
		}
		return model.VerifiedAccount{}, fmt.Errorf("lookup identity: %w", err)
	}

	if err := s.check(ctx, "login", a, plaintext); err != nil {
		return model.VerifiedAccount{}, err
	}
	s.audit("login", identity, "ok", zap.Stringer("account_id", a.ID))
	return a.Verified(), nil
}

// ChangePassword replaces the credential after checking the current password.
func (s *Accounts) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: empty password", errs.ErrValidation)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.check(ctx, "change_password", a, current); err != nil {
		return err
	}

	cred, err := s.hashOnce(ctx, next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateCredential(ctx, id, cred); err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	s.audit("change_password", a.Identity, "ok", zap.Stringer("account_id", a.ID))
	return nil
}

// Get returns the account without its credential.
func (s *Accounts) Get(ctx context.Context, id uuid.UUID) (model.VerifiedAccount, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.VerifiedAccount{}, err
	}
	return a.Verified(), nil
}

// hashOnce refuses a value that already carries the adaptive discriminator:
// hashing it would store a hash of a hash that no password can match.
func (s *Accounts) hashOnce(ctx context.Context, plaintext string) (crypto.HashedCredential, error) {
	if crypto.IsHashed(plaintext) {
		return crypto.HashedCredential{}, fmt.Errorf("%w: password looks like a stored credential", errs.ErrValidation)
	}
	return s.hasher.Hash(ctx, plaintext)
}

func (s *Accounts) check(ctx context.Context, action string, a *model.Account, plaintext string) error {
	ok, err := s.hasher.Verify(ctx, plaintext, a.Credential)
	if err != nil {
		if errors.Is(err, errs.ErrCorruptCredential) {
			s.log.Error("stored credential is corrupt",
				zap.String("action", action),
				zap.Stringer("account_id", a.ID),
				zap.Object("credential", a.Credential),
				zap.Error(err),
			)
		}
		return err
	}
	if !ok {
		s.audit(action, a.Identity, "invalid_credential", zap.Stringer("account_id", a.ID))
		return errs.ErrInvalidCredential
	}
	return nil
}

func (s *Accounts) audit(action, identity, outcome string, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("action", action),
		zap.String("identity", identity),
		zap.String("outcome", outcome),
	}, extra...)
	s.log.Info("credential event", fields...)
}
