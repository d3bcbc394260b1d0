// Package crypto seals the refresh tokens handed to clients. A refresh token is an
// AES-256-GCM envelope naming the access token it renews, so clients can neither
// read nor forge one without the key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the length of every cipher key in bytes.
const KeySize = 32

var (
	// ErrKeyLengthInvalid is returned for keys that are not KeySize bytes long.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes")
	// ErrKeyEncoding is returned when an encoded key is neither hex nor base64.
	ErrKeyEncoding = errors.New("crypto: key must be 64 hex characters or base64 of 32 bytes")
	// ErrCiphertextCorrupted is returned when a token is not valid base64 or is too short.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted")
	// ErrDecryptionFailed is returned when no configured key authenticates the token.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// TokenCipher seals with its current key and opens with the current key or any
// retired one, so keys can be rotated without invalidating outstanding refresh tokens.
type TokenCipher struct {
	keys []cipher.AEAD
}

// NewTokenCipher builds a cipher sealing with current. Tokens sealed under any of
// previous still open.
func NewTokenCipher(current []byte, previous ...[]byte) (*TokenCipher, error) {
	tc := &TokenCipher{keys: make([]cipher.AEAD, 0, 1+len(previous))}
	for i, key := range append([][]byte{current}, previous...) {
		aead, err := newAEAD(key)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("previous key %d: %w", i, err)
		}
		tc.keys = append(tc.keys, aead)
	}
	return tc, nil
}

// newAEAD does not retain key; the block cipher expands its own schedule.
func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under the current key and returns nonce||ciphertext as
// unpadded URL-safe base64. An empty plaintext seals to "".
func (tc *TokenCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead := tc.keys[0]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: read nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Open reverses Seal, trying the current key first.
func (tc *TokenCipher) Open(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}
	// All keys are GCM with the standard nonce size
	n := tc.keys[0].NonceSize()
	if len(raw) < n+tc.keys[0].Overhead() {
		return "", ErrCiphertextCorrupted
	}
	for _, aead := range tc.keys {
		if plaintext, err := aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plaintext), nil
		}
	}
	return "", ErrDecryptionFailed
}

// ParseKey decodes a key given as 64 hex characters or as padded or unpadded
// standard or URL base64.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if len(encoded) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(encoded); err == nil {
			return key, nil
		}
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding,
		base64.RawStdEncoding, base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(key) != KeySize {
			return nil, ErrKeyLengthInvalid
		}
		return key, nil
	}
	return nil, ErrKeyEncoding
}

// ParseKeyList decodes a comma separated list of keys, skipping blank entries.
func ParseKeyList(encoded string) ([][]byte, error) {
	var keys [][]byte
	for i, part := range strings.Split(encoded, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		key, err := ParseKey(part)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// GenerateKey returns KeySize random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
