// Package crypto implements server-side password hashing and verification.
//
// New credentials are always bcrypt hashes stored behind the "adaptive$"
// discriminator. Anything without that prefix is a legacy credential from the
// previous identity system and is checked by a LegacyVerifier.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"

	"github.com/and161185/goph-auth/internal/errs"
)

const (
	// AdaptivePrefix marks a persisted credential produced by Hasher.Hash.
	AdaptivePrefix = "adaptive$"

	// DefaultCost is the bcrypt work factor for new credentials.
	DefaultCost = 12

	// MaxPasswordBytes is the longest password bcrypt can digest without truncation.
	MaxPasswordBytes = 72
)

// Format says which algorithm family produced a credential.
type Format int

const (
	FormatAdaptive Format = iota + 1
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatAdaptive:
		return "adaptive"
	case FormatLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// HashedCredential is an immutable stored password hash. The zero value is
// not a valid credential. It can only be obtained from Hasher.Hash or Parse.
type HashedCredential struct {
	format  Format
	encoded string
}

// Format reports the credential format.
func (c HashedCredential) Format() Format { return c.format }

// IsZero reports whether c was never produced by Hash or Parse.
func (c HashedCredential) IsZero() bool { return c.format == 0 }

// Stored returns the single-string persisted form.
func (c HashedCredential) Stored() string {
	if c.format == FormatAdaptive {
		return AdaptivePrefix + c.encoded
	}
	return c.encoded
}

// String keeps credential material out of fmt output.
func (c HashedCredential) String() string { return "[REDACTED]" }

// GoString keeps credential material out of %#v output.
func (c HashedCredential) GoString() string { return "crypto.HashedCredential{[REDACTED]}" }

// MarshalLogObject lets zap log the format only.
func (c HashedCredential) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("format", c.format.String())
	return nil
}

// IsHashed reports whether s already carries the adaptive discriminator.
func IsHashed(s string) bool { return strings.HasPrefix(s, AdaptivePrefix) }

// Parse classifies a persisted credential string. It never fails: a broken
// encoding is reported by Verify as errs.ErrCorruptCredential.
func Parse(stored string) HashedCredential {
	if IsHashed(stored) {
		return HashedCredential{format: FormatAdaptive, encoded: strings.TrimPrefix(stored, AdaptivePrefix)}
	}
	return HashedCredential{format: FormatLegacy, encoded: stored}
}

// LegacyVerifier checks a plaintext against a credential issued by the previous system.
type LegacyVerifier interface {
	VerifyLegacy(plaintext, encoded string) (bool, error)
}

// Hasher hashes new passwords and verifies both credential formats.
// It holds no mutable state and is safe for concurrent use.
type Hasher struct {
	cost   int
	legacy LegacyVerifier
}

// NewHasher constructs a Hasher. legacy may be nil, in which case legacy
// credentials fail verification as corrupt.
func NewHasher(cost int, legacy LegacyVerifier) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost, legacy: legacy}, nil
}

// Hash returns a fresh adaptive credential for plaintext. Every call uses a new
// random salt, so hashing the same password twice gives different results.
func (h *Hasher) Hash(plaintext string) (HashedCredential, error) {
	if len(plaintext) > MaxPasswordBytes {
		return HashedCredential{}, fmt.Errorf("%w: password longer than %d bytes", errs.ErrValidation, MaxPasswordBytes)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return HashedCredential{}, fmt.Errorf("bcrypt: %w", err)
	}
	return HashedCredential{format: FormatAdaptive, encoded: string(b)}, nil
}

// Verify reports whether plaintext matches stored. A mismatch is (false, nil);
// an error always wraps errs.ErrCorruptCredential.
func (h *Hasher) Verify(plaintext string, stored HashedCredential) (bool, error) {
	switch stored.format {
	case FormatAdaptive:
		// Hash refuses these, so no adaptive credential can match one.
		if len(plaintext) > MaxPasswordBytes {
			return false, nil
		}
		return compareBcrypt([]byte(plaintext), []byte(stored.encoded))
	case FormatLegacy:
		if h.legacy == nil {
			return false, fmt.Errorf("%w: no legacy verifier configured", errs.ErrCorruptCredential)
		}
		return h.legacy.VerifyLegacy(plaintext, stored.encoded)
	default:
		return false, fmt.Errorf("%w: unknown format", errs.ErrCorruptCredential)
	}
}

// compareBcrypt compares in constant time via bcrypt and separates mismatch from corruption.
func compareBcrypt(password, hash []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, password)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", errs.ErrCorruptCredential, err)
	}
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
