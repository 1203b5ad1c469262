package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/carelink/referral-core/pkg/database"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/types"
)

// PackageRepository persists intake package metadata. Raw key material never
// passes through here, only key IDs.
type PackageRepository interface {
	Create(ctx context.Context, pkg *types.IntakePackage) error
	GetByID(ctx context.Context, id string) (*types.IntakePackage, error)
	ListByReferral(ctx context.Context, referralID string) ([]*types.IntakePackage, error)
	MarkEncrypted(ctx context.Context, id, checksum string, sizeBytes int64, iv, authTag []byte) error
	MarkUploaded(ctx context.Context, id, storageKey, location, url string, urlExpiry time.Time) error
	MarkDownloaded(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, message string) error
	UpdateDownloadURL(ctx context.Context, id, url string, urlExpiry time.Time) error
}

// SQLPackageRepository is the PostgreSQL-backed PackageRepository.
type SQLPackageRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewSQLPackageRepository creates a new PostgreSQL package repository
func NewSQLPackageRepository(db *database.DB, log *logger.Logger) *SQLPackageRepository {
	return &SQLPackageRepository{
		db:     db,
		logger: log,
	}
}

const packageColumns = `
	id, referral_id, package_type, encryption_algorithm, encryption_key_id,
	storage_key, storage_location, download_url, presigned_url_expiry,
	file_size_bytes, checksum_sha256, iv, auth_tag, status, error_message,
	expires_at, created_at, updated_at, created_by`

// Create inserts a new package row in status pending
func (r *SQLPackageRepository) Create(ctx context.Context, pkg *types.IntakePackage) error {
	query := `
		INSERT INTO intake_packages (
			id, referral_id, package_type, encryption_algorithm,
			encryption_key_id, status, expires_at, created_at, updated_at,
			created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		pkg.ID,
		pkg.ReferralID,
		pkg.PackageType,
		pkg.EncryptionAlgorithm,
		pkg.EncryptionKeyID,
		string(pkg.Status),
		pkg.ExpiresAt,
		pkg.CreatedAt,
		pkg.UpdatedAt,
		pkg.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create intake package: %w", err)
	}

	r.logger.WithPackageID(pkg.ID).WithField("referral_id", pkg.ReferralID).Info("Created intake package")
	return nil
}

// GetByID retrieves a package by ID
func (r *SQLPackageRepository) GetByID(ctx context.Context, id string) (*types.IntakePackage, error) {
	query := `SELECT ` + packageColumns + ` FROM intake_packages WHERE id = $1`

	pkg, err := scanPackage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound,
				fmt.Sprintf("intake package not found: %s", id))
		}
		return nil, fmt.Errorf("failed to get intake package: %w", err)
	}

	return pkg, nil
}

// ListByReferral retrieves all packages for one referral, newest first
func (r *SQLPackageRepository) ListByReferral(ctx context.Context, referralID string) ([]*types.IntakePackage, error) {
	query := `SELECT ` + packageColumns + ` FROM intake_packages WHERE referral_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, referralID)
	if err != nil {
		return nil, fmt.Errorf("failed to list intake packages: %w", err)
	}
	defer rows.Close()

	var packages []*types.IntakePackage
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intake package row: %w", err)
		}
		packages = append(packages, pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intake package rows: %w", err)
	}

	return packages, nil
}

// MarkEncrypted records the codec output: checksum, size, IV and auth tag
func (r *SQLPackageRepository) MarkEncrypted(ctx context.Context, id, checksum string, sizeBytes int64, iv, authTag []byte) error {
	query := `
		UPDATE intake_packages
		SET status = $1, checksum_sha256 = $2, file_size_bytes = $3,
			iv = $4, auth_tag = $5, updated_at = $6
		WHERE id = $7`

	return r.exec(ctx, id, query,
		string(types.PackageEncrypted), checksum, sizeBytes, iv, authTag,
		time.Now().UTC(), id)
}

// MarkUploaded records the storage location and the initial presigned URL
func (r *SQLPackageRepository) MarkUploaded(ctx context.Context, id, storageKey, location, url string, urlExpiry time.Time) error {
	query := `
		UPDATE intake_packages
		SET status = $1, storage_key = $2, storage_location = $3,
			download_url = $4, presigned_url_expiry = $5, updated_at = $6
		WHERE id = $7`

	return r.exec(ctx, id, query,
		string(types.PackageUploaded), storageKey, location, url, urlExpiry,
		time.Now().UTC(), id)
}

// MarkDownloaded is the best-effort first-download marker
func (r *SQLPackageRepository) MarkDownloaded(ctx context.Context, id string) error {
	query := `UPDATE intake_packages SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	_, err := r.db.ExecContext(ctx, query,
		string(types.PackageDownloaded), time.Now().UTC(), id, string(types.PackageUploaded))
	if err != nil {
		return fmt.Errorf("failed to mark package downloaded: %w", err)
	}
	return nil
}

// MarkExpired reflects a passed expires_at in the status column
func (r *SQLPackageRepository) MarkExpired(ctx context.Context, id string) error {
	query := `UPDATE intake_packages SET status = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, id, query, string(types.PackageExpired), time.Now().UTC(), id)
}

// MarkError records a terminal failure with its message
func (r *SQLPackageRepository) MarkError(ctx context.Context, id, message string) error {
	query := `UPDATE intake_packages SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`
	return r.exec(ctx, id, query, string(types.PackageError), message, time.Now().UTC(), id)
}

// UpdateDownloadURL stores a freshly minted presigned URL
func (r *SQLPackageRepository) UpdateDownloadURL(ctx context.Context, id, url string, urlExpiry time.Time) error {
	query := `UPDATE intake_packages SET download_url = $1, presigned_url_expiry = $2, updated_at = $3 WHERE id = $4`
	return r.exec(ctx, id, query, url, urlExpiry, time.Now().UTC(), id)
}

func (r *SQLPackageRepository) exec(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update intake package: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("intake package not found: %s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPackage(row rowScanner) (*types.IntakePackage, error) {
	var pkg types.IntakePackage
	var storageKey, location, url, checksum, errMsg, createdBy sql.NullString
	var urlExpiry sql.NullTime
	var status string

	err := row.Scan(
		&pkg.ID, &pkg.ReferralID, &pkg.PackageType, &pkg.EncryptionAlgorithm,
		&pkg.EncryptionKeyID, &storageKey, &location, &url, &urlExpiry,
		&pkg.FileSizeBytes, &checksum, &pkg.IV, &pkg.AuthTag, &status,
		&errMsg, &pkg.ExpiresAt, &pkg.CreatedAt, &pkg.UpdatedAt, &createdBy,
	)
	if err != nil {
		return nil, err
	}

	pkg.StorageKey = storageKey.String
	pkg.StorageLocation = location.String
	pkg.DownloadURL = url.String
	pkg.ChecksumSHA256 = checksum.String
	pkg.ErrorMessage = errMsg.String
	pkg.CreatedBy = createdBy.String
	pkg.Status = types.PackageStatus(status)
	if urlExpiry.Valid {
		v := urlExpiry.Time
		pkg.PresignedURLExpiry = &v
	}

	return &pkg, nil
}
