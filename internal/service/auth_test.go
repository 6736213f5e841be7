package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/goph-auth/internal/crypto"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
)

func register(t *testing.T, f *fixture, email, pw string) (model.VerifiedAccount, model.Tokens) {
	t.Helper()
	va, tok, err := f.auth.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: pw,
		Profile:  model.Profile{Username: strings.Split(email, "@")[0]},
	})
	require.NoError(t, err)
	return va, tok
}

func TestAuth_RegisterLoginScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	va, tok := register(t, f, "a@x.com", "correct-horse")
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.True(t, strings.HasPrefix(f.repo.stored("a@x.com"), "adaptive$"))

	tok, err := f.auth.Login(ctx, "a@x.com", "correct-horse")
	require.NoError(t, err)
	id, err := f.auth.Authenticate(tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, va.ID, id)

	_, errWrong := f.auth.Login(ctx, "a@x.com", "wrong")
	_, errUnknown := f.auth.Login(ctx, "unknown@x.com", "wrong")
	require.ErrorIs(t, errWrong, errs.ErrUnauthorized)
	require.ErrorIs(t, errUnknown, errs.ErrUnauthorized)
	require.Equal(t, errWrong.Error(), errUnknown.Error())
	require.False(t, errors.Is(errWrong, errs.ErrInvalidCredential))
	require.False(t, errors.Is(errUnknown, errs.ErrUnknownIdentity))

	before := f.repo.stored("a@x.com")
	_, _, err = f.auth.Register(ctx, RegisterInput{Email: "a@x.com", Password: "other"})
	require.ErrorIs(t, err, errs.ErrDuplicateIdentity)
	require.Equal(t, before, f.repo.stored("a@x.com"))

	f.requireNoSecrets(t, "correct-horse", "other")
}

func TestAuth_Login_CorruptLooksLikeWrongPassword(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.repo.put("bad@x.com", "adaptive$broken")

	_, err := f.auth.Login(context.Background(), "bad@x.com", "pw")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.False(t, errors.Is(err, errs.ErrCorruptCredential))
}

func TestAuth_Login_Legacy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.repo.put("old@x.com", pbkdf2Stored("old-secret", "s4lt", 100))

	tok, err := f.auth.Login(context.Background(), "old@x.com", "old-secret")
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
}

func TestAuth_Login_InfraErrorNotMasked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	register(t, f, "a@x.com", "pw")

	boom := errors.New("db down")
	f.repo.findErr = boom
	_, err := f.auth.Login(context.Background(), "a@x.com", "pw")
	require.ErrorIs(t, err, boom)
	f.repo.findErr = nil

	f.refresh.saveErr = errors.New("redis down")
	_, err = f.auth.Login(context.Background(), "a@x.com", "pw")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuth_RefreshRotation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	va, tok := register(t, f, "a@x.com", "pw")

	next, err := f.auth.Refresh(ctx, tok.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tok.RefreshToken, next.RefreshToken)
	id, err := f.auth.Authenticate(next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, va.ID, id)

	// The old refresh token is single use.
	_, err = f.auth.Refresh(ctx, tok.RefreshToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	// An access token is not a refresh token.
	_, err = f.auth.Refresh(ctx, next.AccessToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, err = f.auth.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestAuth_Refresh_OwnerMismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, tok := register(t, f, "a@x.com", "pw")

	_, jti, err := f.auth.issuer.ParseRefresh(tok.RefreshToken)
	require.NoError(t, err)
	f.refresh.live[jti] = uuid.Must(uuid.NewV4())

	_, err = f.auth.Refresh(ctx, tok.RefreshToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestAuth_Logout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, tok := register(t, f, "a@x.com", "pw")

	require.NoError(t, f.auth.Logout(ctx, tok.RefreshToken))
	require.NoError(t, f.auth.Logout(ctx, tok.RefreshToken))
	_, err := f.auth.Refresh(ctx, tok.RefreshToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	require.ErrorIs(t, f.auth.Logout(ctx, tok.AccessToken), errs.ErrTokenInvalid)
}

func TestAuth_Authenticate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, tok := register(t, f, "a@x.com", "pw")

	_, err := f.auth.Authenticate(tok.RefreshToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
	_, err = f.auth.Authenticate("")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestAuth_Profile(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	va, _ := register(t, f, "a@x.com", "pw")

	got, err := f.auth.Profile(context.Background(), va.ID)
	require.NoError(t, err)
	require.Equal(t, "a", got.Profile.Username)
	require.Equal(t, "a@x.com", got.Identity)
}

func TestAuth_ChangePasswordRevokesSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	va, tok := register(t, f, "a@x.com", "old-pw")
	_, err := f.auth.Login(ctx, "a@x.com", "old-pw")
	require.NoError(t, err)
	require.Equal(t, 2, f.refresh.count())

	require.ErrorIs(t, f.auth.ChangePassword(ctx, va.ID, "nope", "new-pw"), errs.ErrUnauthorized)
	require.Equal(t, 2, f.refresh.count())

	require.NoError(t, f.auth.ChangePassword(ctx, va.ID, "old-pw", "new-pw"))
	require.Zero(t, f.refresh.count())
	_, err = f.auth.Refresh(ctx, tok.RefreshToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, err = f.auth.Login(ctx, "a@x.com", "new-pw")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(f.repo.stored("a@x.com"), crypto.AdaptivePrefix))
}
