package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/carelink/referral-core/pkg/types"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 16
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// SealedData carries the output of one Encrypt call. The authentication tag
// is kept separate from the ciphertext bytes.
type SealedData struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// Encrypt encrypts plaintext with AES-256-GCM under a fresh random 16-byte
// IV. The key must be exactly 32 bytes; anything else is rejected rather
// than truncated or padded.
func Encrypt(plaintext, key []byte) (*SealedData, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	// Seal appends the tag to the ciphertext; split it back off.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - TagSize

	return &SealedData{
		Ciphertext: sealed[:tagStart],
		IV:         iv,
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt verifies the authentication tag and returns the plaintext. Tag
// verification failure (tampered data or wrong key) is reported as an
// integrity error, never as partially decrypted output.
func Decrypt(sealed *SealedData, key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if len(sealed.IV) != IVSize {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("invalid IV length: expected %d bytes, got %d", IVSize, len(sealed.IV)), nil)
	}
	if len(sealed.AuthTag) != TagSize {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("invalid auth tag length: expected %d bytes, got %d", TagSize, len(sealed.AuthTag)), nil)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	combined := make([]byte, 0, len(sealed.Ciphertext)+TagSize)
	combined = append(combined, sealed.Ciphertext...)
	combined = append(combined, sealed.AuthTag...)

	plaintext, err := gcm.Open(nil, sealed.IV, combined, nil)
	if err != nil {
		return nil, types.NewIntegrityError(types.ErrCodeIntegrityFailure,
			"authentication tag verification failed", err)
	}

	// gcm.Open returns nil for empty plaintext; keep the round trip exact.
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

func checkKey(key []byte) error {
	if len(key) != KeySize {
		return types.NewValidationError(types.ErrCodeInvalidKeyLength,
			fmt.Sprintf("invalid key length: expected %d bytes, got %d", KeySize, len(key)), nil)
	}
	return nil
}
