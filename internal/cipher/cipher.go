package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrDecryptionFailure is returned for any corrupt, truncated, or
// wrong-track ciphertext. The underlying AEAD error is never exposed.
var ErrDecryptionFailure = errors.New("decryption failure")

const (
	keySize   = 32
	nonceSize = 12
)

// PayloadCipher encrypts and decrypts audio chunks with AES-256-GCM. Each
// track gets its own key derived from the root secret, so a chunk encrypted
// for one track can never be opened as another. The root secret is immutable
// and shared read-only across requests; per-track keys are recomputed per
// call and never stored or logged.
type PayloadCipher struct {
	rootSecret []byte
}

// NewPayloadCipher creates a cipher from the process root secret.
func NewPayloadCipher(rootSecret []byte) (*PayloadCipher, error) {
	if len(rootSecret) == 0 {
		return nil, errors.New("root secret must not be empty")
	}
	return &PayloadCipher{rootSecret: rootSecret}, nil
}

// trackKey derives the per-track AES key: HKDF-SHA256(rootSecret, info=trackID).
func (p *PayloadCipher) trackKey(trackID string) ([]byte, error) {
	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, p.rootSecret, nil, []byte("track-key:"+trackID))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

func (p *PayloadCipher) aead(trackID string) (stdcipher.AEAD, error) {
	key, err := p.trackKey(trackID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return stdcipher.NewGCM(block)
}

// Encrypt seals plaintext for a track. A fresh random 12-byte nonce is
// generated per call and prefixed to the returned ciphertext; the trackID is
// bound as additional authenticated data.
func (p *PayloadCipher) Encrypt(trackID string, plaintext []byte) ([]byte, error) {
	aead, err := p.aead(trackID)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Layout: nonce || ciphertext || tag
	return aead.Seal(nonce, nonce, plaintext, []byte(trackID)), nil
}

// Decrypt opens a chunk previously sealed for the same track. Corruption,
// truncation, or a track mismatch all surface as ErrDecryptionFailure.
func (p *PayloadCipher) Decrypt(trackID string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, ErrDecryptionFailure
	}

	aead, err := p.aead(trackID)
	if err != nil {
		return nil, err
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(trackID))
	if err != nil {
		return nil, ErrDecryptionFailure
	}
	return plaintext, nil
}
