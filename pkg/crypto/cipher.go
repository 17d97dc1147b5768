// Package crypto seals per-user payloads with AES-256-GCM under a key derived once
// from the long-lived encryption secret.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize   = 32
	SaltSize  = 64
	NonceSize = 16
	TagSize   = 16

	// MinCiphertextSize is the smallest decoded input Decrypt will consider
	MinCiphertextSize = SaltSize + NonceSize + TagSize

	// DefaultIterations is the PBKDF2 work factor used when none is configured
	DefaultIterations = 100000
)

// LegacyKDFSalt is the constant salt used by deployments that never configured
// ENCRYPTION_KDF_SALT. Ciphertext written under it stays readable only while it is kept.
const LegacyKDFSalt = "tradeguard-secure-storage-v1"

var (
	ErrInvalidKey         = errors.New("invalid encryption key")
	ErrCipherDestroyed    = errors.New("cipher key has been destroyed")
	encoding              = base64.StdEncoding.Strict()
	errCiphertextTooShort = errors.New("ciphertext too short")
)

// Cipher encrypts and authenticates payloads. It is safe for concurrent use.
type Cipher struct {
	mu  sync.RWMutex
	key *memguard.Enclave
}

// KeyParams controls how the storage key is derived from the secret
type KeyParams struct {
	Salt       []byte
	Iterations int
}

// NewCipher derives the storage key with PBKDF2-HMAC-SHA256 and keeps it in a
// memguard enclave for the lifetime of the process.
func NewCipher(secret string, params KeyParams) (*Cipher, error) {
	if secret == "" {
		return nil, models.ErrEncryptionKeyMissing
	}
	if len(params.Salt) == 0 {
		params.Salt = []byte(LegacyKDFSalt)
	}
	if params.Iterations <= 0 {
		params.Iterations = DefaultIterations
	}

	derived := pbkdf2.Key([]byte(secret), params.Salt, params.Iterations, KeySize, sha256.New)
	return NewCipherFromKey(derived)
}

// NewCipherFromKey wraps an already derived 32-byte key. The slice is wiped.
func NewCipherFromKey(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	// NewEnclave wipes the source buffer.
	return &Cipher{key: memguard.NewEnclave(key)}, nil
}

// Destroy drops the key. Subsequent calls fail with ErrCipherDestroyed.
// The enclave's sealed copy is only wiped by memguard.Purge, which the
// process runs on shutdown.
func (c *Cipher) Destroy() {
	c.mu.Lock()
	c.key = nil
	c.mu.Unlock()
}

// Encrypt seals plaintext and returns base64(salt || iv || ciphertext || tag).
// associated is authenticated but not stored; Decrypt must be given the same value.
func (c *Cipher) Encrypt(plaintext, associated []byte) (string, error) {
	gcm, done, err := c.aead()
	if err != nil {
		return "", err
	}
	defer done()

	out := make([]byte, SaltSize+NonceSize, SaltSize+NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return "", fmt.Errorf("generating salt and nonce: %w", err)
	}
	salt, nonce := out[:SaltSize], out[SaltSize:]

	out = gcm.Seal(out, nonce, plaintext, additionalData(salt, associated))
	return encoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. Any modification of the encoded
// value, or a different key or associated data, yields a *models.DecryptionError.
func (c *Cipher) Decrypt(encoded string, associated []byte) ([]byte, error) {
	raw, err := encoding.DecodeString(encoded)
	if err != nil {
		return nil, &models.DecryptionError{Reason: "malformed encoding", Err: err}
	}
	if len(raw) < MinCiphertextSize {
		return nil, &models.DecryptionError{Reason: "input too short", Err: errCiphertextTooShort}
	}

	gcm, done, err := c.aead()
	if err != nil {
		return nil, err
	}
	defer done()

	salt := raw[:SaltSize]
	nonce := raw[SaltSize : SaltSize+NonceSize]
	sealed := raw[SaltSize+NonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, additionalData(salt, associated))
	if err != nil {
		return nil, &models.DecryptionError{Reason: "authentication tag mismatch", Err: err}
	}
	return plaintext, nil
}

func (c *Cipher) aead() (cipher.AEAD, func(), error) {
	if c == nil {
		return nil, nil, ErrCipherDestroyed
	}
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if key == nil {
		return nil, nil, ErrCipherDestroyed
	}

	buf, err := key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("opening key enclave: %w", err)
	}

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, buf.Destroy, nil
}

// additionalData binds the per-message salt and caller context into the tag
func additionalData(salt, associated []byte) []byte {
	ad := make([]byte, 0, len(salt)+len(associated))
	ad = append(ad, salt...)
	return append(ad, associated...)
}
