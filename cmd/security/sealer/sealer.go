package sealer

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeyEnv is the env var name for the credential passphrase.
	// #nosec G101 -- not a credential; it's an environment variable name.
	KeyEnv = "FRONTDESK_CREDENTIAL_KEY"

	// MinKeyBytes is the minimum passphrase length accepted by New.
	MinKeyBytes = 12

	saltLen = 16
)

var prefix = []byte("fdseal1:")

// Params are the argon2id cost parameters.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultParams follow the OWASP minimum for argon2id.
func DefaultParams() Params {
	return Params{Time: 2, Memory: 19 * 1024, Threads: 1}
}

// Sealer encrypts and decrypts small blobs with a passphrase-derived key.
type Sealer struct {
	passphrase []byte
	params     Params
}

// New returns a Sealer for passphrase, enforcing MinKeyBytes.
func New(passphrase string) (*Sealer, error) {
	p := strings.TrimSpace(passphrase)
	if p == "" {
		return nil, ErrKeyMissing
	}
	if len(p) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}
	return &Sealer{passphrase: []byte(p), params: DefaultParams()}, nil
}

// FromEnv builds a Sealer from FRONTDESK_CREDENTIAL_KEY.
// It returns ErrKeyMissing when the variable is unset or blank.
func FromEnv() (*Sealer, error) {
	return New(os.Getenv(KeyEnv))
}

// Enabled reports whether a credential key is configured (non-empty after trim).
// It does not enforce the minimum length; use FromEnv for policy checks.
func Enabled() bool {
	return strings.TrimSpace(os.Getenv(KeyEnv)) != ""
}

// WithParams returns a copy of s using the given argon2id cost parameters.
func (s *Sealer) WithParams(p Params) *Sealer {
	cp := *s
	cp.params = p
	return &cp
}

// Seal encrypts plain and returns the encoded blob.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("sealer: salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("sealer: cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealer: nonce: %w", err)
	}

	raw := make([]byte, 0, saltLen+len(nonce)+len(plain)+aead.Overhead())
	raw = append(raw, salt...)
	raw = append(raw, nonce...)
	raw = aead.Seal(raw, nonce, plain, prefix)

	out := make([]byte, len(prefix)+base64.RawStdEncoding.EncodedLen(len(raw)))
	copy(out, prefix)
	base64.RawStdEncoding.Encode(out[len(prefix):], raw)
	return out, nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	sealed = bytes.TrimSpace(sealed)
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}

	raw := make([]byte, base64.RawStdEncoding.DecodedLen(len(sealed)-len(prefix)))
	n, err := base64.RawStdEncoding.Decode(raw, sealed[len(prefix):])
	if err != nil {
		return nil, ErrOpen
	}
	raw = raw[:n]

	if len(raw) < saltLen+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrOpen
	}
	salt := raw[:saltLen]
	nonce := raw[saltLen : saltLen+chacha20poly1305.NonceSizeX]
	ct := raw[saltLen+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("sealer: cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ct, prefix)
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

func (s *Sealer) deriveKey(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, s.params.Time, s.params.Memory, s.params.Threads, chacha20poly1305.KeySize)
}

// IsSealed reports whether b carries the sealed-blob prefix.
func IsSealed(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(b), prefix)
}

// Fingerprint returns the first 12 hex chars of SHA-256(token), or "" for an empty token.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
