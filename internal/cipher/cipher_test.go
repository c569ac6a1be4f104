package cipher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *PayloadCipher {
	t.Helper()
	p, err := NewPayloadCipher([]byte("root-secret-for-tests-0123456789"))
	require.NoError(t, err)
	return p
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := testCipher(t)

	payloads := [][]byte{
		[]byte("short"),
		{},
		bytes.Repeat([]byte{0xAB}, 64*1024), // typical chunk size
	}

	for _, plaintext := range payloads {
		ciphertext, err := p.Encrypt("track-1", plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		got, err := p.Decrypt("track-1", ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestDecryptWrongTrackFails(t *testing.T) {
	p := testCipher(t)

	ciphertext, err := p.Encrypt("track-1", []byte("audio bytes"))
	require.NoError(t, err)

	_, err = p.Decrypt("track-2", ciphertext)
	assert.ErrorIs(t, err, ErrDecryptionFailure)
}

func TestDecryptCorruptCiphertextFails(t *testing.T) {
	p := testCipher(t)

	ciphertext, err := p.Encrypt("track-1", []byte("audio bytes"))
	require.NoError(t, err)

	corrupt := append([]byte(nil), ciphertext...)
	corrupt[len(corrupt)-1] ^= 0x01
	_, err = p.Decrypt("track-1", corrupt)
	assert.ErrorIs(t, err, ErrDecryptionFailure)
}

func TestDecryptTruncatedCiphertextFails(t *testing.T) {
	p := testCipher(t)

	_, err := p.Decrypt("track-1", []byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrDecryptionFailure)
}

func TestFreshNoncePerCall(t *testing.T) {
	p := testCipher(t)

	a, err := p.Encrypt("track-1", []byte("same payload"))
	require.NoError(t, err)
	b, err := p.Encrypt("track-1", []byte("same payload"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encryptions of the same payload must differ")
	assert.NotEqual(t, a[:12], b[:12], "nonces must differ between calls")
}

func TestDifferentRootSecretsProduceIncompatibleCiphertext(t *testing.T) {
	p := testCipher(t)
	other, err := NewPayloadCipher([]byte("a-completely-different-root-sec!"))
	require.NoError(t, err)

	ciphertext, err := p.Encrypt("track-1", []byte("audio bytes"))
	require.NoError(t, err)

	_, err = other.Decrypt("track-1", ciphertext)
	assert.ErrorIs(t, err, ErrDecryptionFailure)
}
