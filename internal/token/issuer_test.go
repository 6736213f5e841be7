package token

import (
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/goph-auth/internal/errs"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer([]byte("secret"), 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	return i
}

func TestNewIssuer_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewIssuer(nil, time.Minute, time.Hour)
	require.Error(t, err)
	_, err = NewIssuer([]byte("k"), 0, time.Hour)
	require.Error(t, err)
	_, err = NewIssuer([]byte("k"), time.Minute, -time.Hour)
	require.Error(t, err)
}

func TestIssue_ParseRoundTrip(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	id := uuid.Must(uuid.NewV4())

	got, err := i.Issue(id)
	require.NoError(t, err)
	require.NotEmpty(t, got.Tokens.AccessToken)
	require.NotEmpty(t, got.Tokens.RefreshToken)
	require.NotEmpty(t, got.RefreshJTI)
	require.Equal(t, 24*time.Hour, got.RefreshTTL)
	require.True(t, got.Tokens.ExpiresAt.After(time.Now()))
	require.True(t, got.Tokens.RefreshExpiresAt.After(got.Tokens.ExpiresAt))

	sub, err := i.ParseAccess(got.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, id, sub)

	sub, jti, err := i.ParseRefresh(got.Tokens.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, id, sub)
	require.Equal(t, got.RefreshJTI, jti)

	again, err := i.Issue(id)
	require.NoError(t, err)
	require.NotEqual(t, got.RefreshJTI, again.RefreshJTI)
}

func TestParse_TypeConfusion(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)

	got, err := i.Issue(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)

	_, err = i.ParseAccess(got.Tokens.RefreshToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
	_, _, err = i.ParseRefresh(got.Tokens.AccessToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	past := time.Now().Add(-2 * time.Hour)
	i.now = func() time.Time { return past }

	got, err := i.Issue(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)

	i.now = time.Now
	_, err = i.ParseAccess(got.Tokens.AccessToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestParse_WrongKeyAndAlg(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	other, err := NewIssuer([]byte("other"), time.Minute, time.Hour)
	require.NoError(t, err)

	got, err := other.Issue(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	_, err = i.ParseAccess(got.Tokens.AccessToken)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	now := time.Now()
	claims := Claims{Type: TypeAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.Must(uuid.NewV4()).String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}
	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = i.ParseAccess(hs384)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, err = i.ParseAccess("this-is-not-a-jwt")
	require.True(t, errors.Is(err, errs.ErrTokenInvalid))
}

func TestParse_BadSubjectAndMissingJTI(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t)
	now := time.Now()

	tok, _, err := i.sign(TypeAccess, "not-a-uuid", "", now, time.Hour)
	require.NoError(t, err)
	_, err = i.ParseAccess(tok)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	tok, _, err = i.sign(TypeRefresh, uuid.Must(uuid.NewV4()).String(), "", now, time.Hour)
	require.NoError(t, err)
	_, _, err = i.ParseRefresh(tok)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}
