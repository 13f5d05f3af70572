// Package crypto implements keyed encryption of portal credentials at rest.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext indicates a stored credential that cannot be decoded
// or fails authentication under the configured key.
var ErrInvalidCiphertext = errors.New("invalid credential ciphertext")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives the AEAD key from the configured secret.
func DeriveKey(secret string) []byte {
	k := sha256.Sum256([]byte(secret))
	return k[:]
}

// EncryptPassword encrypts a portal password with XChaCha20-Poly1305 and a
// random nonce. Output is hex(nonce || ciphertext).
func EncryptPassword(key []byte, password string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(password)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(password), nil)...)
	return hex.EncodeToString(out), nil
}

// DecryptPassword reverses EncryptPassword.
func DecryptPassword(key []byte, enc string) (string, error) {
	raw, err := hex.DecodeString(enc)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", ErrInvalidCiphertext
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := raw[:chacha20poly1305.NonceSizeX]
	ct := raw[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(pt), nil
}
