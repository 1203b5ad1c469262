package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carelink/referral-core/pkg/types"
)

// MemoryPackageRepository is an in-memory PackageRepository for tests and
// local development.
type MemoryPackageRepository struct {
	mu       sync.RWMutex
	packages map[string]*types.IntakePackage
}

// NewMemoryPackageRepository creates an empty in-memory package repository
func NewMemoryPackageRepository() *MemoryPackageRepository {
	return &MemoryPackageRepository{packages: make(map[string]*types.IntakePackage)}
}

// Create inserts a new package row
func (m *MemoryPackageRepository) Create(ctx context.Context, pkg *types.IntakePackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *pkg
	m.packages[pkg.ID] = &stored
	return nil
}

// GetByID retrieves a package by ID
func (m *MemoryPackageRepository) GetByID(ctx context.Context, id string) (*types.IntakePackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pkg, ok := m.packages[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("intake package not found: %s", id))
	}
	out := *pkg
	return &out, nil
}

// ListByReferral retrieves all packages for one referral
func (m *MemoryPackageRepository) ListByReferral(ctx context.Context, referralID string) ([]*types.IntakePackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.IntakePackage
	for _, pkg := range m.packages {
		if pkg.ReferralID == referralID {
			c := *pkg
			out = append(out, &c)
		}
	}
	return out, nil
}

// MarkEncrypted records codec output
func (m *MemoryPackageRepository) MarkEncrypted(ctx context.Context, id, checksum string, sizeBytes int64, iv, authTag []byte) error {
	return m.update(id, func(pkg *types.IntakePackage) {
		pkg.Status = types.PackageEncrypted
		pkg.ChecksumSHA256 = checksum
		pkg.FileSizeBytes = sizeBytes
		pkg.IV = append([]byte(nil), iv...)
		pkg.AuthTag = append([]byte(nil), authTag...)
	})
}

// MarkUploaded records storage location and initial URL
func (m *MemoryPackageRepository) MarkUploaded(ctx context.Context, id, storageKey, location, url string, urlExpiry time.Time) error {
	return m.update(id, func(pkg *types.IntakePackage) {
		pkg.Status = types.PackageUploaded
		pkg.StorageKey = storageKey
		pkg.StorageLocation = location
		pkg.DownloadURL = url
		expiry := urlExpiry
		pkg.PresignedURLExpiry = &expiry
	})
}

// MarkDownloaded is the best-effort first-download marker
func (m *MemoryPackageRepository) MarkDownloaded(ctx context.Context, id string) error {
	return m.update(id, func(pkg *types.IntakePackage) {
		if pkg.Status == types.PackageUploaded {
			pkg.Status = types.PackageDownloaded
		}
	})
}

// MarkExpired reflects a passed expiry in the status
func (m *MemoryPackageRepository) MarkExpired(ctx context.Context, id string) error {
	return m.update(id, func(pkg *types.IntakePackage) {
		pkg.Status = types.PackageExpired
	})
}

// MarkError records a terminal failure
func (m *MemoryPackageRepository) MarkError(ctx context.Context, id, message string) error {
	return m.update(id, func(pkg *types.IntakePackage) {
		pkg.Status = types.PackageError
		pkg.ErrorMessage = message
	})
}

// UpdateDownloadURL stores a freshly minted presigned URL
func (m *MemoryPackageRepository) UpdateDownloadURL(ctx context.Context, id, url string, urlExpiry time.Time) error {
	return m.update(id, func(pkg *types.IntakePackage) {
		pkg.DownloadURL = url
		expiry := urlExpiry
		pkg.PresignedURLExpiry = &expiry
	})
}

func (m *MemoryPackageRepository) update(id string, fn func(*types.IntakePackage)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pkg, ok := m.packages[id]
	if !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("intake package not found: %s", id))
	}
	fn(pkg)
	pkg.UpdatedAt = time.Now().UTC()
	return nil
}
