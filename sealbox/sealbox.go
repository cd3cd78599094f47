// Package sealbox seals broker records with AES-256-GCM before they touch
// the backing store. Blobs are base64(nonce || ciphertext) with the GCM tag
// appended, so any corruption or wrong key fails closed on decrypt.
package sealbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"

	brokererrors "github.com/nutrilink/broker/internal/errors"
)

// keyHexLength is the required length of the hex-encoded 256-bit key.
const keyHexLength = 64

// Box performs authenticated encryption with a fixed 256-bit key.
type Box struct {
	aead cipher.AEAD
}

// New validates the hex key and builds a Box. The key must be exactly 64
// hexadecimal characters; anything else is a configuration error, reported
// before any cryptographic operation takes place.
func New(keyHex string) (*Box, error) {
	if len(keyHex) != keyHexLength {
		return nil, errors.Wrapf(brokererrors.ErrConfiguration, "[sealbox.New] master key must be %d hex characters, got %d", keyHexLength, len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrConfiguration, "[sealbox.New] master key is not valid hex")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[sealbox.New] aes.NewCipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[sealbox.New] cipher.NewGCM")
	}

	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh 96-bit random nonce and returns the
// base64-encoded blob. Two calls with identical plaintext produce different
// blobs.
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "[Box.Encrypt] rand.Reader")
	}

	sealed := b.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Corrupted blobs, truncated blobs
// and blobs sealed under a different key all return ErrDecryption; plaintext
// is never returned on a failed tag check.
func (b *Box) Decrypt(blob string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrDecryption, "[Box.Decrypt] blob is not valid base64")
	}

	nonceSize := b.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.Wrap(brokererrors.ErrDecryption, "[Box.Decrypt] blob shorter than nonce")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(brokererrors.ErrDecryption, "[Box.Decrypt] authentication failed")
	}

	return plaintext, nil
}
