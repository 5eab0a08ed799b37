// Package crypt seals archived capture images with AES-256-GCM. The key is
// derived from a passphrase with PBKDF2; the nonce is prepended to the
// ciphertext.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32
	iterations = 4096
)

var ErrShortCiphertext = errors.New("ciphertext is shorter than the nonce")

// DefaultSalt is used when no salt is configured. Changing it makes
// previously archived images unreadable.
var DefaultSalt = []byte("odi-gate/captures")

type Cipher struct {
	gcm cipher.AEAD
}

func New(passphrase string, salt []byte) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	if len(salt) == 0 {
		salt = DefaultSalt
	}
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

func (c *Cipher) Encrypt(input io.Reader) (io.ReadSeeker, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	plainText, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(c.gcm.Seal(nonce, nonce, plainText, nil)), nil
}

func (c *Cipher) Decrypt(input io.Reader) (io.ReadSeeker, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(input, nonce); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortCiphertext
		}
		return nil, err
	}

	cipherText, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	plainText, err := c.gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt: %w", err)
	}
	return bytes.NewReader(plainText), nil
}
