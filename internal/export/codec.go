package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelink/referral-core/pkg/encryption"
	"github.com/carelink/referral-core/pkg/types"
)

// PackageManifest is the canonical plaintext payload of an intake package:
// the referral snapshot plus export metadata. JSON with fixed field order,
// so checksum and decrypt round-trips are deterministic.
type PackageManifest struct {
	PackageID      string          `json:"packageId"`
	PackageType    string          `json:"packageType"`
	PackageVersion string          `json:"packageVersion"`
	ExportedAt     time.Time       `json:"exportedAt"`
	ExportedBy     string          `json:"exportedBy"`
	Referral       *types.Referral `json:"referral"`
}

// EncodedPackage is the output of one encode: ciphertext with its IV and
// auth tag, the checksum over the ciphertext bytes, and the payload size.
type EncodedPackage struct {
	Ciphertext     []byte
	IV             []byte
	AuthTag        []byte
	ChecksumSHA256 string
	SizeBytes      int64
}

// EncodePackage serializes the manifest and encrypts it under the given
// data key. The checksum is computed over the encrypted bytes, never the
// plaintext.
func EncodePackage(manifest *PackageManifest, key *encryption.DataKey) (*EncodedPackage, error) {
	if manifest.Referral == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"package manifest has no referral snapshot", nil)
	}

	plaintext, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize package manifest: %w", err)
	}

	sealed, err := encryption.Encrypt(plaintext, key.Key)
	if err != nil {
		return nil, err
	}

	return &EncodedPackage{
		Ciphertext:     sealed.Ciphertext,
		IV:             sealed.IV,
		AuthTag:        sealed.AuthTag,
		ChecksumSHA256: encryption.SHA256Hex(sealed.Ciphertext),
		SizeBytes:      int64(len(sealed.Ciphertext)),
	}, nil
}

// DecodePackage verifies the checksum (when given), decrypts, and
// deserializes the manifest. Checksum verification happens before any
// decryption is attempted; a mismatch means the ciphertext is not the bytes
// that were uploaded and nothing further can be trusted.
func DecodePackage(ciphertext, iv, authTag, key []byte, expectedChecksum string) (*PackageManifest, error) {
	if expectedChecksum != "" {
		actual := encryption.SHA256Hex(ciphertext)
		if actual != expectedChecksum {
			return nil, types.NewIntegrityError(types.ErrCodeChecksumMismatch,
				"package checksum does not match ciphertext", nil)
		}
	}

	plaintext, err := encryption.Decrypt(&encryption.SealedData{
		Ciphertext: ciphertext,
		IV:         iv,
		AuthTag:    authTag,
	}, key)
	if err != nil {
		return nil, err
	}

	var manifest PackageManifest
	if err := json.Unmarshal(plaintext, &manifest); err != nil {
		return nil, fmt.Errorf("failed to deserialize package manifest: %w", err)
	}

	return &manifest, nil
}
