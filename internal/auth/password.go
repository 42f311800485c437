package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing schemes.
const (
	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"
)

// MaxPasswordBytes is the longest password bcrypt can hash without truncation.
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords. Verify never returns an error: a
// malformed digest simply does not match.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	NeedsRehash(digest string) bool
}

// Argon2Params tunes Argon2id hashing.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params follows the OWASP recommendation.
var DefaultArgon2Params = Argon2Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// PasswordHasher hashes new passwords with one scheme and verifies digests
// produced by any supported scheme.
type PasswordHasher struct {
	scheme     string
	bcryptCost int
	argon      Argon2Params
}

// NewPasswordHasher builds a hasher for scheme. A zero bcryptCost selects
// bcrypt.DefaultCost.
func NewPasswordHasher(scheme string, bcryptCost int, argon Argon2Params) (*PasswordHasher, error) {
	switch scheme {
	case "", SchemeBcrypt:
		scheme = SchemeBcrypt
	case SchemeArgon2id:
	default:
		return nil, fmt.Errorf("auth: unsupported password scheme %q", scheme)
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range", bcryptCost)
	}
	if argon.Time == 0 || argon.Memory == 0 || argon.Threads == 0 || argon.KeyLen == 0 || argon.SaltLen == 0 {
		argon = DefaultArgon2Params
	}
	return &PasswordHasher{scheme: scheme, bcryptCost: bcryptCost, argon: argon}, nil
}

// Hash hashes plaintext with the configured scheme.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", bcrypt.ErrPasswordTooLong
	}
	if h.scheme == SchemeArgon2id {
		return h.hashArgon(plaintext)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest.
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	switch schemeOf(digest) {
	case SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	case SchemeArgon2id:
		ok, err := verifyArgon(plaintext, digest)
		return err == nil && ok
	default:
		return false
	}
}

// NeedsRehash reports whether digest was produced with a different scheme
// or weaker parameters than the ones currently configured.
func (h *PasswordHasher) NeedsRehash(digest string) bool {
	if schemeOf(digest) != h.scheme {
		return true
	}
	if h.scheme == SchemeBcrypt {
		cost, err := bcrypt.Cost([]byte(digest))
		return err != nil || cost < h.bcryptCost
	}
	_, _, params, err := decodePHC(digest)
	return err != nil || params.time < h.argon.Time || params.memory < h.argon.Memory
}

func schemeOf(digest string) string {
	switch {
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return SchemeBcrypt
	case strings.HasPrefix(digest, "$argon2id$"):
		return SchemeArgon2id
	default:
		return ""
	}
}

func (h *PasswordHasher) hashArgon(plaintext string) (string, error) {
	salt := make([]byte, h.argon.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.argon.Time, h.argon.Memory, h.argon.Threads, h.argon.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.argon.Memory, h.argon.Time, h.argon.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon(plaintext, encoded string) (bool, error) {
	salt, key, params, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(plaintext), salt, params.time, params.memory, params.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

var errInvalidPHC = errors.New("auth: invalid PHC hash format")

// decodePHC parses $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>.
func decodePHC(encoded string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != SchemeArgon2id {
		return nil, nil, params, errInvalidPHC
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, params, errInvalidPHC
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, errInvalidPHC
	}
	if params.time == 0 || params.memory == 0 || params.threads == 0 {
		return nil, nil, params, errInvalidPHC
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, errInvalidPHC
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(key) == 0 {
		return nil, nil, params, errInvalidPHC
	}
	return salt, key, params, nil
}

var _ Hasher = (*PasswordHasher)(nil)
