// Package crypto provides key derivation and AEAD primitives for the vault.
// All secret payloads are encrypted with AES-256-GCM; passphrase-derived keys
// use PBKDF2-SHA256 with at least 100k iterations.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/sealbox/sealbox/pkg/schema"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 32
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000
)

// Key is a sealed symmetric key. The raw key bytes are consumed at
// construction and never exposed; callers can only Encrypt and Decrypt.
type Key struct {
	aead cipher.AEAD
}

func newKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"key must be %d bytes, got %d", KeySize, len(raw))
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Key{aead: aead}, nil
}

// DeriveKey stretches a passphrase into a Key via PBKDF2-SHA256.
// When salt is nil a fresh random salt is generated; the salt in use is
// returned so the caller can persist it. The same passphrase and salt always
// yield the same key.
func DeriveKey(passphrase string, salt []byte) (*Key, []byte, error) {
	if passphrase == "" {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "passphrase is empty")
	}
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("generate salt: %w", err)
		}
	}
	if len(salt) < SaltSize {
		return nil, nil, schema.NewErrorf(schema.ErrCodeValidation,
			"salt must be at least %d bytes, got %d", SaltSize, len(salt))
	}
	raw, err := pbkdf2.Key(sha256.New, passphrase, salt, Iterations, KeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("pbkdf2: %w", err)
	}
	key, err := newKey(raw)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

// GenerateKey returns a Key built from a random 256-bit key, for the
// no-passphrase path where the OS keyring holds the raw key material.
func GenerateKey() (*Key, []byte, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	key, err := newKey(raw)
	if err != nil {
		return nil, nil, err
	}
	return key, raw, nil
}

// KeyFromBytes rebuilds a Key from raw key material previously produced by
// GenerateKey and held by the OS keyring.
func KeyFromBytes(raw []byte) (*Key, error) {
	return newKey(raw)
}

// Encrypt AEAD-encrypts plaintext under the key with a fresh random nonce.
// The returned blob is nonce||ciphertext||tag. Nonce reuse under the same key
// breaks GCM entirely, so every call generates a new one.
func (k *Key) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return k.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext blob. It fails closed: a short blob or a
// failed tag verification yields a DECRYPTION_ERROR and no plaintext.
func (k *Key) Decrypt(blob []byte) ([]byte, error) {
	nonceSize := k.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, schema.NewError(schema.ErrCodeDecryption, "ciphertext too short")
	}
	nonce := blob[:nonceSize]
	ct := blob[nonceSize:]
	plaintext, err := k.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecryption, "decrypt failed: %s", err.Error())
	}
	return plaintext, nil
}
