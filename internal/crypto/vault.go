// Package crypto provides AES-256-GCM encryption for credentials at rest
// (site JWTs, refresh tokens).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"crypto/sha256"
)

const (
	version = "v1"

	// keySalt is the application-level PBKDF2 salt. It is not secret; it is
	// recorded in every ciphertext so a future version can rotate it.
	keySalt = "wpbridge-credential-vault"

	pbkdf2Iterations = 100_000
	keyLen           = 32
	nonceLen         = 12
	tagLen           = 16

	// MinSecretLength is the shortest server secret the vault accepts.
	MinSecretLength = 16
)

var (
	// ErrWeakSecret is returned when the configured secret is missing or too
	// short. The vault never falls back to an unkeyed mode.
	ErrWeakSecret = errors.New("encryption secret missing or shorter than 16 characters")

	// ErrBadCiphertext is returned for malformed, unknown-version, or
	// tampered ciphertexts.
	ErrBadCiphertext = errors.New("invalid or tampered ciphertext")
)

// Vault encrypts and decrypts credentials with a key derived once from the
// server secret. Safe for concurrent use; the key is immutable after New.
type Vault struct {
	aead cipher.AEAD
}

// New derives the vault key from secret via PBKDF2-SHA256 and the static
// application salt. Fails fast on a weak secret.
func New(secret string) (*Vault, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	aead, err := newAEAD(secret, keySalt)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

func newAEAD(secret, salt string) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(secret), []byte(salt), pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with a fresh random nonce and returns
// "v1:<saltB64>:<nonceB64>:<ciphertextB64>:<tagB64>".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	b64 := base64.StdEncoding.EncodeToString
	return strings.Join([]string{
		version,
		b64([]byte(keySalt)),
		b64(nonce),
		b64(ct),
		b64(tag),
	}, ":"), nil
}

// Decrypt reverses Encrypt. Unknown versions and failed authentication both
// return ErrBadCiphertext; no partial plaintext is ever returned.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 5 || parts[0] != version {
		return "", ErrBadCiphertext
	}

	var fields [4][]byte
	for i, p := range parts[1:] {
		b, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return "", ErrBadCiphertext
		}
		fields[i] = b
	}
	salt, nonce, ct, tag := fields[0], fields[1], fields[2], fields[3]

	if len(nonce) != nonceLen || len(tag) != tagLen {
		return "", ErrBadCiphertext
	}
	if string(salt) != keySalt {
		return "", ErrBadCiphertext
	}

	plaintext, err := v.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrBadCiphertext
	}
	return string(plaintext), nil
}
