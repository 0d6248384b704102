// Package secure encrypts cached transcripts at rest.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Crypter seals data with AES-256-GCM. The record id is used as associated
// data, so a ciphertext opens only under the id it was sealed for.
type Crypter struct {
	aead cipher.AEAD
}

func NewCrypter(key string) (*Crypter, error) {
	k := []byte(key)
	l := len(k)
	if l < 32 {
		return nil, fmt.Errorf("key length must be >= 32 bytes, got %d", l)
	}
	block, err := aes.NewCipher(k[:32])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Crypter{aead: aead}, nil
}

// Encrypt returns nonce followed by the ciphertext
func (c *Crypter) Encrypt(id string, data []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, data, []byte(id)), nil
}

// Decrypt accepts the output of Encrypt
func (c *Crypter) Decrypt(id string, data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return c.aead.Open(nil, nonce, ciphertext, []byte(id))
}
