// Package token mints and checks the HS256 bearer tokens handed out after a
// successful credential check.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the JWT claims for both token types.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issued is the result of Issue: the pair handed to the client and the
// refresh token id to be tracked server-side.
type Issued struct {
	Tokens     model.Tokens
	RefreshJTI string
	RefreshTTL time.Duration
}

// Issuer signs and validates tokens with one symmetric key.
type Issuer struct {
	signKey    []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(signKey []byte, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if len(signKey) == 0 {
		return nil, errors.New("empty signing key")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Issuer{
		signKey:    signKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		leeway:     30 * time.Second,
		now:        time.Now,
	}, nil
}

// Issue creates a fresh access/refresh pair for accountID.
func (i *Issuer) Issue(accountID uuid.UUID) (Issued, error) {
	now := i.now()
	sub := accountID.String()

	access, accessExp, err := i.sign(TypeAccess, sub, "", now, i.accessTTL)
	if err != nil {
		return Issued{}, err
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return Issued{}, err
	}
	refresh, refreshExp, err := i.sign(TypeRefresh, sub, jti.String(), now, i.refreshTTL)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		Tokens: model.Tokens{
			AccessToken:      access,
			RefreshToken:     refresh,
			ExpiresAt:        accessExp,
			RefreshExpiresAt: refreshExp,
		},
		RefreshJTI: jti.String(),
		RefreshTTL: i.refreshTTL,
	}, nil
}

func (i *Issuer) sign(typ, sub, jti string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

// ParseAccess validates an access token and returns its subject.
func (i *Issuer) ParseAccess(tok string) (uuid.UUID, error) {
	c, err := i.parse(tok, TypeAccess)
	if err != nil {
		return uuid.Nil, err
	}
	return subject(c)
}

// ParseRefresh validates a refresh token and returns its subject and jti.
func (i *Issuer) ParseRefresh(tok string) (uuid.UUID, string, error) {
	c, err := i.parse(tok, TypeRefresh)
	if err != nil {
		return uuid.Nil, "", err
	}
	if c.ID == "" {
		return uuid.Nil, "", fmt.Errorf("%w: missing jti", errs.ErrTokenInvalid)
	}
	id, err := subject(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.ID, nil
}

func (i *Issuer) parse(tok, typ string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.signKey, nil
	},
		jwt.WithLeeway(i.leeway),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", errs.ErrTokenInvalid, err)
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: want %s token", errs.ErrTokenInvalid, typ)
	}
	return &claims, nil
}

func subject(c *Claims) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrTokenInvalid)
	}
	return id, nil
}
