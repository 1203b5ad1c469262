package types

import "time"

// PackageStatus is the lifecycle status of one encrypted export artifact.
type PackageStatus string

const (
	PackagePending    PackageStatus = "pending"
	PackageEncrypted  PackageStatus = "encrypted"
	PackageUploaded   PackageStatus = "uploaded"
	PackageDownloaded PackageStatus = "downloaded"
	PackageExpired    PackageStatus = "expired"
	PackageError      PackageStatus = "error"
)

// EncryptionAlgorithmAES256GCM is the only algorithm packages are written with.
const EncryptionAlgorithmAES256GCM = "AES-256-GCM"

// IntakePackage is one encrypted export artifact tied to exactly one
// referral. A referral may have multiple packages over time; each is
// independent. Raw key material is never stored here, only the key ID.
type IntakePackage struct {
	ID                  string        `json:"id"`
	ReferralID          string        `json:"referralId"`
	PackageType         string        `json:"packageType"`
	EncryptionAlgorithm string        `json:"encryptionAlgorithm"`
	EncryptionKeyID     string        `json:"encryptionKeyId"`
	StorageKey          string        `json:"storageKey,omitempty"`
	StorageLocation     string        `json:"storageLocation,omitempty"`
	DownloadURL         string        `json:"downloadUrl,omitempty"`
	PresignedURLExpiry  *time.Time    `json:"presignedUrlExpiry,omitempty"`
	FileSizeBytes       int64         `json:"fileSizeBytes"`
	ChecksumSHA256      string        `json:"checksumSha256,omitempty"`
	IV                  []byte        `json:"-"`
	AuthTag             []byte        `json:"-"`
	Status              PackageStatus `json:"status"`
	ErrorMessage        string        `json:"errorMessage,omitempty"`
	ExpiresAt           time.Time     `json:"expiresAt"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
	CreatedBy           string        `json:"createdBy,omitempty"`
}

// Terminal reports whether the package accepts no further transitions.
func (p *IntakePackage) Terminal() bool {
	switch p.Status {
	case PackageDownloaded, PackageExpired, PackageError:
		return true
	}
	return false
}

// IntakePackageSummary is what package creation returns to callers: metadata
// plus a presigned URL, never raw key bytes in normal operation.
type IntakePackageSummary struct {
	PackageID           string        `json:"packageId"`
	ReferralID          string        `json:"referralId"`
	PackageType         string        `json:"packageType"`
	Status              PackageStatus `json:"status"`
	EncryptionAlgorithm string        `json:"encryptionAlgorithm"`
	EncryptionKeyID     string        `json:"encryptionKeyId"`
	ChecksumSHA256      string        `json:"checksumSha256"`
	FileSizeBytes       int64         `json:"fileSizeBytes"`
	DownloadURL         string        `json:"downloadUrl"`
	PresignedURLExpiry  time.Time     `json:"presignedUrlExpiry"`
	ExpiresAt           time.Time     `json:"expiresAt"`

	// RawKeyBase64 is populated only when the development-only escape hatch
	// is enabled in configuration. Unsafe for production use.
	RawKeyBase64 string `json:"rawKeyBase64,omitempty"`
}

// PackageEvent is the notification emitted when a package becomes available.
type PackageEvent struct {
	Kind        string    `json:"kind"`
	PackageID   string    `json:"packageId"`
	ReferralID  string    `json:"referralId"`
	DownloadURL string    `json:"downloadUrl"`
	URLExpiry   time.Time `json:"urlExpiry"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// SLASeverity grades how far past its phase target a referral has drifted.
type SLASeverity string

const (
	SLAWarning  SLASeverity = "warning"
	SLACritical SLASeverity = "critical"
)

// SLAViolation flags one referral sitting in a phase past its target days.
type SLAViolation struct {
	ReferralID  string         `json:"referralId"`
	Status      WorkflowStatus `json:"status"`
	Phase       string         `json:"phase"`
	TargetDays  int            `json:"targetDays"`
	ElapsedDays float64        `json:"elapsedDays"`
	Severity    SLASeverity    `json:"severity"`
}

// SweepResult summarizes one automation pass over stored referrals.
type SweepResult struct {
	Checked      int `json:"checked"`
	Transitioned int `json:"transitioned"`
}

// SLASweepResult summarizes one SLA evaluation pass.
type SLASweepResult struct {
	Checked    int            `json:"checked"`
	Violations []SLAViolation `json:"violations"`
}
