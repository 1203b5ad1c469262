package encryption

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/carelink/referral-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randomKey(t)

	plaintexts := [][]byte{
		[]byte("hello"),
		[]byte(""),
		[]byte(`{"referralId":"abc-123","firstName":"Jane"}`),
		bytes.Repeat([]byte{0xAB}, 64*1024),
	}

	for _, plaintext := range plaintexts {
		sealed, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		assert.Len(t, sealed.IV, IVSize)
		assert.Len(t, sealed.AuthTag, TagSize)
		assert.Equal(t, len(plaintext), len(sealed.Ciphertext))

		decrypted, err := Decrypt(sealed, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptGeneratesFreshIV(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("same plaintext")

	first, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	second, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestDecryptDetectsTampering(t *testing.T) {
	key := randomKey(t)
	sealed, err := Encrypt([]byte("protected health information"), key)
	require.NoError(t, err)

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		tampered := &SealedData{
			Ciphertext: append([]byte(nil), sealed.Ciphertext...),
			IV:         sealed.IV,
			AuthTag:    sealed.AuthTag,
		}
		tampered.Ciphertext[0] ^= 0x01

		_, err := Decrypt(tampered, key)
		assert.True(t, types.IsCode(err, types.ErrCodeIntegrityFailure))
	})

	t.Run("flipped tag bit", func(t *testing.T) {
		tampered := &SealedData{
			Ciphertext: sealed.Ciphertext,
			IV:         sealed.IV,
			AuthTag:    append([]byte(nil), sealed.AuthTag...),
		}
		tampered.AuthTag[TagSize-1] ^= 0x80

		_, err := Decrypt(tampered, key)
		assert.True(t, types.IsCode(err, types.ErrCodeIntegrityFailure))
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := Decrypt(sealed, randomKey(t))
		assert.True(t, types.IsCode(err, types.ErrCodeIntegrityFailure))
	})
}

func TestKeyLengthChecked(t *testing.T) {
	shortKey := make([]byte, 16)

	_, err := Encrypt([]byte("data"), shortKey)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidKeyLength))

	sealed, err := Encrypt([]byte("data"), randomKey(t))
	require.NoError(t, err)
	_, err = Decrypt(sealed, shortKey)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidKeyLength))
}

func TestDecryptRejectsBadLengths(t *testing.T) {
	key := randomKey(t)
	sealed, err := Encrypt([]byte("data"), key)
	require.NoError(t, err)

	badIV := &SealedData{Ciphertext: sealed.Ciphertext, IV: sealed.IV[:8], AuthTag: sealed.AuthTag}
	_, err = Decrypt(badIV, key)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidInput))

	badTag := &SealedData{Ciphertext: sealed.Ciphertext, IV: sealed.IV, AuthTag: sealed.AuthTag[:4]}
	_, err = Decrypt(badTag, key)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidInput))
}

func TestSHA256Hex(t *testing.T) {
	// Known vector for the empty input.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil))

	digest := SHA256Hex([]byte("ciphertext bytes"))
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, SHA256Hex([]byte("ciphertext bytes")))
	assert.NotEqual(t, digest, SHA256Hex([]byte("ciphertext bytez")))
}
