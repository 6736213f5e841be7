package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/and161185/goph-auth/internal/errs"
)

// DjangoVerifier verifies credentials written by the previous Django-based
// identity system: "<algorithm>$<fields>".
//
// Supported algorithms: pbkdf2_sha256, pbkdf2_sha1, argon2 (argon2id and
// argon2i), bcrypt_sha256 and bcrypt. The bcrypt form also covers rows the
// previous service stored as "bcrypt$<hash>".
type DjangoVerifier struct{}

var _ LegacyVerifier = DjangoVerifier{}

// VerifyLegacy implements LegacyVerifier.
func (DjangoVerifier) VerifyLegacy(plaintext, encoded string) (bool, error) {
	// "!" marks an unusable password: it never matches.
	if strings.HasPrefix(encoded, "!") {
		return false, nil
	}
	algo, rest, ok := strings.Cut(encoded, "$")
	if !ok || algo == "" {
		return false, corrupt("missing algorithm")
	}

	switch algo {
	case "pbkdf2_sha256":
		return verifyPBKDF2(plaintext, rest, sha256.New, sha256.Size)
	case "pbkdf2_sha1":
		return verifyPBKDF2(plaintext, rest, sha1.New, sha1.Size)
	case "argon2":
		return verifyArgon2(plaintext, rest)
	case "bcrypt_sha256":
		sum := sha256.Sum256([]byte(plaintext))
		return compareBcrypt([]byte(hex.EncodeToString(sum[:])), []byte(rest))
	case "bcrypt":
		return compareBcrypt(truncate72([]byte(plaintext)), []byte(rest))
	default:
		return false, corrupt("unsupported algorithm " + strconv.Quote(algo))
	}
}

// truncate72 mirrors the previous system's bcrypt, which only ever saw the
// first 72 bytes of a password.
func truncate72(p []byte) []byte {
	if len(p) > MaxPasswordBytes {
		return p[:MaxPasswordBytes]
	}
	return p
}

// verifyPBKDF2 handles "<iterations>$<salt>$<base64 digest>".
func verifyPBKDF2(plaintext, fields string, h func() hash.Hash, size int) (bool, error) {
	parts := strings.Split(fields, "$")
	if len(parts) != 3 {
		return false, corrupt("pbkdf2 field count")
	}
	iter, err := strconv.Atoi(parts[0])
	if err != nil || iter <= 0 {
		return false, corrupt("pbkdf2 iterations")
	}
	salt := parts[1]
	if salt == "" {
		return false, corrupt("pbkdf2 salt")
	}
	want, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(want) != size {
		return false, corrupt("pbkdf2 digest")
	}

	got := pbkdf2.Key([]byte(plaintext), []byte(salt), iter, size, h)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// verifyArgon2 handles "<variant>$v=19$m=<kib>,t=<iter>,p=<lanes>$<salt>$<digest>"
// with unpadded base64 salt and digest. Old rows may omit the version field.
func verifyArgon2(plaintext, fields string) (bool, error) {
	parts := strings.Split(fields, "$")
	switch len(parts) {
	case 5:
		if parts[1] != "v=19" {
			return false, corrupt("argon2 version " + strconv.Quote(parts[1]))
		}
		parts = append(parts[:1], parts[2:]...)
	case 4:
	default:
		return false, corrupt("argon2 field count")
	}
	variant := parts[0]

	var memory, iterations uint32
	var lanes uint8
	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &memory, &iterations, &lanes); err != nil {
		return false, corrupt("argon2 params")
	}
	if memory == 0 || iterations == 0 || lanes == 0 {
		return false, corrupt("argon2 params")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return false, corrupt("argon2 salt")
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false, corrupt("argon2 digest")
	}

	var got []byte
	switch variant {
	case "argon2id":
		got = argon2.IDKey([]byte(plaintext), salt, iterations, memory, lanes, uint32(len(want)))
	case "argon2i":
		got = argon2.Key([]byte(plaintext), salt, iterations, memory, lanes, uint32(len(want)))
	default:
		return false, corrupt("argon2 variant " + strconv.Quote(variant))
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func corrupt(reason string) error {
	return fmt.Errorf("%w: legacy %s", errs.ErrCorruptCredential, reason)
}
