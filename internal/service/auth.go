// Package service contains application services for registration, login and tokens.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/repository"
	"github.com/and161185/goph-auth/internal/token"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email    string
	Password string
	Profile  model.Profile
}

// AuthService defines the operations exposed to transports.
type AuthService interface {
	// Register creates an account and signs the new user in.
	Register(ctx context.Context, in RegisterInput) (model.VerifiedAccount, model.Tokens, error)
	// Login verifies credentials and issues tokens; every credential failure is errs.ErrUnauthorized.
	Login(ctx context.Context, identity, password string) (model.Tokens, error)
	// Refresh rotates a refresh token into a new pair.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Logout revokes a refresh token.
	Logout(ctx context.Context, refreshToken string) error
	// Authenticate resolves an access token to an account ID.
	Authenticate(accessToken string) (uuid.UUID, error)
	// Profile returns the account behind an authenticated request.
	Profile(ctx context.Context, accountID uuid.UUID) (model.VerifiedAccount, error)
	// ChangePassword replaces the password and revokes all refresh tokens.
	ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error
}

type AuthServiceImpl struct {
	accounts *Accounts
	issuer   *token.Issuer
	refresh  repository.RefreshTokenRepository
	log      *zap.Logger
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts *Accounts, issuer *token.Issuer, refresh repository.RefreshTokenRepository, log *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{accounts: accounts, issuer: issuer, refresh: refresh, log: log}
}

// Register creates the account, then issues its first token pair.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (model.VerifiedAccount, model.Tokens, error) {
	va, err := s.accounts.Create(ctx, in.Email, in.Password, in.Profile)
	if err != nil {
		return model.VerifiedAccount{}, model.Tokens{}, err
	}
	tok, err := s.issue(ctx, va.ID)
	if err != nil {
		return model.VerifiedAccount{}, model.Tokens{}, err
	}
	return va, tok, nil
}

// Login authenticates and issues tokens. Unknown identity, wrong password and
// a corrupt stored credential all come back as errs.ErrUnauthorized.
func (s *AuthServiceImpl) Login(ctx context.Context, identity, password string) (model.Tokens, error) {
	va, err := s.accounts.Verify(ctx, identity, password)
	if err != nil {
		if isCredentialFailure(err) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	return s.issue(ctx, va.ID)
}

// Refresh consumes the presented refresh token and issues a new pair. A
// refresh token can be used once.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	sub, jti, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return model.Tokens{}, errs.ErrTokenInvalid
	}
	owner, err := s.refresh.Consume(ctx, jti)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.log.Warn("refresh token not live", zap.Stringer("account_id", sub))
			return model.Tokens{}, errs.ErrTokenInvalid
		}
		return model.Tokens{}, err
	}
	if owner != sub {
		s.log.Warn("refresh token owner mismatch", zap.Stringer("account_id", sub))
		return model.Tokens{}, errs.ErrTokenInvalid
	}
	return s.issue(ctx, sub)
}

// Logout revokes the refresh token. Revoking an already dead token succeeds.
func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	_, jti, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return errs.ErrTokenInvalid
	}
	return s.refresh.Revoke(ctx, jti)
}

// Authenticate validates an access token.
func (s *AuthServiceImpl) Authenticate(accessToken string) (uuid.UUID, error) {
	id, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		return uuid.Nil, errs.ErrTokenInvalid
	}
	return id, nil
}

// Profile loads the caller's account.
func (s *AuthServiceImpl) Profile(ctx context.Context, accountID uuid.UUID) (model.VerifiedAccount, error) {
	return s.accounts.Get(ctx, accountID)
}

// ChangePassword checks the current password, stores the new one and signs
// out every session of the account.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error {
	if err := s.accounts.ChangePassword(ctx, accountID, current, next); err != nil {
		if isCredentialFailure(err) {
			return errs.ErrUnauthorized
		}
		return err
	}
	if err := s.refresh.RevokeAll(ctx, accountID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func (s *AuthServiceImpl) issue(ctx context.Context, accountID uuid.UUID) (model.Tokens, error) {
	issued, err := s.issuer.Issue(accountID)
	if err != nil {
		return model.Tokens{}, err
	}
	if err := s.refresh.Save(ctx, issued.RefreshJTI, accountID, issued.RefreshTTL); err != nil {
		return model.Tokens{}, err
	}
	return issued.Tokens, nil
}

func isCredentialFailure(err error) bool {
	return errors.Is(err, errs.ErrUnknownIdentity) ||
		errors.Is(err, errs.ErrInvalidCredential) ||
		errors.Is(err, errs.ErrCorruptCredential)
}
