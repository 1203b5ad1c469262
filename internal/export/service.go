package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/carelink/referral-core/pkg/config"
	"github.com/carelink/referral-core/pkg/encryption"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/monitoring"
	"github.com/carelink/referral-core/pkg/types"
	"github.com/google/uuid"
)

// ReferralWorkflow is the slice of the referral service this pipeline needs:
// fetch a snapshot and apply the exported-status side effect through the
// workflow choke point.
type ReferralWorkflow interface {
	GetReferral(ctx context.Context, id string) (*types.Referral, error)
	TransitionReferral(ctx context.Context, id string, targetStatus types.WorkflowStatus, reason, actorID string) (*types.Referral, error)
}

// CreateOptions tunes one package creation. Zero values fall back to the
// configured defaults.
type CreateOptions struct {
	PackageType string
	ActorID     string
	ObjectTTL   time.Duration
	URLTTL      time.Duration

	// IncludeRawKey requests the raw key bytes in the summary. Only honored
	// when the configuration allows it; never safe for production.
	IncludeRawKey bool
}

// Service is the package lifecycle manager. Each package moves strictly
// pending → encrypted → uploaded → {downloaded | expired | error}; any step
// failure is terminal for that package and retries mean a new package.
type Service struct {
	referrals ReferralWorkflow
	packages  PackageRepository
	store     ObjectStore
	keys      encryption.KeyProvider
	notifier  NotificationSink
	logger    *logger.Logger
	cfg       *config.Config
}

// NewService creates a new package lifecycle manager
func NewService(referrals ReferralWorkflow, packages PackageRepository, store ObjectStore, keys encryption.KeyProvider, notifier NotificationSink, log *logger.Logger, cfg *config.Config) *Service {
	return &Service{
		referrals: referrals,
		packages:  packages,
		store:     store,
		keys:      keys,
		notifier:  notifier,
		logger:    log,
		cfg:       cfg,
	}
}

// CreatePackage runs the full export lifecycle for one referral and returns
// the package summary with a fresh presigned URL. Steps run strictly in
// order; the referral's workflow status is advanced only after the package
// is safely uploaded and its metadata persisted.
func (s *Service) CreatePackage(ctx context.Context, referralID string, opts CreateOptions) (*types.IntakePackageSummary, error) {
	objectTTL := opts.ObjectTTL
	if objectTTL <= 0 {
		objectTTL = time.Duration(s.cfg.Export.ObjectTTLHours) * time.Hour
	}
	urlTTL := opts.URLTTL
	if urlTTL <= 0 {
		urlTTL = time.Duration(s.cfg.Export.URLTTLHours) * time.Hour
	}
	if urlTTL > objectTTL {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"presigned URL lifetime must not exceed object lifetime", map[string]interface{}{
				"url_ttl":    urlTTL.String(),
				"object_ttl": objectTTL.String(),
			})
	}

	packageType := opts.PackageType
	if packageType == "" {
		packageType = s.cfg.Export.DefaultPackageType
	}

	referral, err := s.referrals.GetReferral(ctx, referralID)
	if err != nil {
		monitoring.RecordPackageOutcome("referral_not_found")
		return nil, err
	}

	dataKey, err := s.keys.GenerateKey()
	if err != nil {
		monitoring.RecordPackageOutcome("key_failure")
		return nil, types.NewInternalError(types.ErrCodeInternalError,
			"failed to obtain encryption key", err)
	}

	now := time.Now().UTC()
	pkg := &types.IntakePackage{
		ID:                  uuid.New().String(),
		ReferralID:          referralID,
		PackageType:         packageType,
		EncryptionAlgorithm: types.EncryptionAlgorithmAES256GCM,
		EncryptionKeyID:     dataKey.KeyID,
		Status:              types.PackagePending,
		ExpiresAt:           now.Add(objectTTL),
		CreatedAt:           now,
		UpdatedAt:           now,
		CreatedBy:           opts.ActorID,
	}

	if err := s.packages.Create(ctx, pkg); err != nil {
		monitoring.RecordPackageOutcome("persist_failure")
		return nil, types.NewInternalError(types.ErrCodeInternalError,
			"failed to persist package record", err)
	}

	// Encode: pending → encrypted.
	encodeStart := time.Now()
	encoded, err := EncodePackage(&PackageManifest{
		PackageID:      pkg.ID,
		PackageType:    packageType,
		PackageVersion: s.cfg.Export.PackageVersion,
		ExportedAt:     now,
		ExportedBy:     opts.ActorID,
		Referral:       referral,
	}, dataKey)
	if err != nil {
		return nil, s.failPackage(ctx, pkg.ID, "encode", err)
	}
	monitoring.ObservePackageStep("encode", time.Since(encodeStart).Seconds())

	if err := s.packages.MarkEncrypted(ctx, pkg.ID, encoded.ChecksumSHA256, encoded.SizeBytes, encoded.IV, encoded.AuthTag); err != nil {
		return nil, s.failPackage(ctx, pkg.ID, "persist_encrypted", err)
	}

	// Upload: encrypted → uploaded, with the initial presigned URL minted
	// in the same step.
	uploadStart := time.Now()
	storageKey := fmt.Sprintf("%s/%s/%s.bin", s.cfg.Storage.KeyPrefix, referralID, pkg.ID)
	location, err := s.store.Put(ctx, storageKey, encoded.Ciphertext, map[string]string{
		"referral-id":      referralID,
		"package-id":       pkg.ID,
		"checksum-sha256":  encoded.ChecksumSHA256,
		"encryption-keyid": dataKey.KeyID,
	})
	if err != nil {
		return nil, s.failPackage(ctx, pkg.ID, "upload", err)
	}
	monitoring.ObservePackageStep("upload", time.Since(uploadStart).Seconds())

	downloadURL, err := s.store.SignDownloadURL(ctx, storageKey, urlTTL)
	if err != nil {
		return nil, s.failPackage(ctx, pkg.ID, "presign", err)
	}

	urlExpiry := time.Now().UTC().Add(urlTTL)
	if err := s.packages.MarkUploaded(ctx, pkg.ID, storageKey, location, downloadURL, urlExpiry); err != nil {
		return nil, s.failPackage(ctx, pkg.ID, "persist_uploaded", err)
	}

	// Side effect on the owning referral, through the workflow choke point.
	// The package itself is already safe; a rejected transition (the
	// referral is not at an exportable status) is logged, not fatal.
	if _, err := s.referrals.TransitionReferral(ctx, referralID, types.StatusRecordsExported, "", opts.ActorID); err != nil {
		s.logger.WithPackageID(pkg.ID).WithField("referral_id", referralID).WithError(err).
			Warn("Referral not advanced to exported status")
	}

	// Fire-and-forget notification.
	event := &types.PackageEvent{
		Kind:        EventPackageReady,
		PackageID:   pkg.ID,
		ReferralID:  referralID,
		DownloadURL: downloadURL,
		URLExpiry:   urlExpiry,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		s.logger.WithPackageID(pkg.ID).WithError(err).Warn("Package notification failed")
	}

	monitoring.RecordPackageOutcome("success")
	s.logger.PHIAccess(opts.ActorID, referralID, "export_package", true, map[string]interface{}{
		"package_id": pkg.ID,
	})

	summary := &types.IntakePackageSummary{
		PackageID:           pkg.ID,
		ReferralID:          referralID,
		PackageType:         packageType,
		Status:              types.PackageUploaded,
		EncryptionAlgorithm: types.EncryptionAlgorithmAES256GCM,
		EncryptionKeyID:     dataKey.KeyID,
		ChecksumSHA256:      encoded.ChecksumSHA256,
		FileSizeBytes:       encoded.SizeBytes,
		DownloadURL:         downloadURL,
		PresignedURLExpiry:  urlExpiry,
		ExpiresAt:           pkg.ExpiresAt,
	}

	if opts.IncludeRawKey {
		if !s.cfg.Encryption.AllowRawKeyExport {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				"raw key export is not enabled", nil)
		}
		s.logger.Security("raw_key_export", map[string]interface{}{
			"package_id": pkg.ID,
			"actor_id":   opts.ActorID,
		})
		summary.RawKeyBase64 = base64.StdEncoding.EncodeToString(dataKey.Key)
	}

	return summary, nil
}

// failPackage records a terminal step failure on the package and returns the
// error the caller sees. The referral's workflow status is never advanced on
// a failed package.
func (s *Service) failPackage(ctx context.Context, packageID, step string, cause error) error {
	monitoring.RecordPackageOutcome("error_" + step)

	message := fmt.Sprintf("%s failed: %v", step, cause)
	if err := s.packages.MarkError(ctx, packageID, message); err != nil {
		s.logger.WithPackageID(packageID).WithError(err).Error("Failed to record package error")
	}

	s.logger.WithPackageID(packageID).WithField("step", step).WithError(cause).
		Error("Package lifecycle step failed")

	return types.NewExternalError(types.ErrCodeStorageFailure,
		fmt.Sprintf("package creation failed at %s step", step), cause)
}

// GetPackage retrieves a package, reflecting a passed expires_at in the
// status at read time. The object store's lifecycle policy owns the actual
// byte deletion; this only mirrors that fact.
func (s *Service) GetPackage(ctx context.Context, id string) (*types.IntakePackage, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !pkg.Terminal() && time.Now().UTC().After(pkg.ExpiresAt) {
		if err := s.packages.MarkExpired(ctx, id); err != nil {
			s.logger.WithPackageID(id).WithError(err).Warn("Failed to persist package expiry")
		}
		pkg.Status = types.PackageExpired
	}

	return pkg, nil
}

// ListPackages retrieves a referral's packages with expiry reflected.
func (s *Service) ListPackages(ctx context.Context, referralID string) ([]*types.IntakePackage, error) {
	packages, err := s.packages.ListByReferral(ctx, referralID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, pkg := range packages {
		if !pkg.Terminal() && now.After(pkg.ExpiresAt) {
			if err := s.packages.MarkExpired(ctx, pkg.ID); err != nil {
				s.logger.WithPackageID(pkg.ID).WithError(err).Warn("Failed to persist package expiry")
			}
			pkg.Status = types.PackageExpired
		}
	}

	return packages, nil
}

// RefreshDownloadURL mints a fresh presigned URL for an uploaded package.
// Regenerable any time before the object itself expires.
func (s *Service) RefreshDownloadURL(ctx context.Context, id string) (*types.IntakePackage, error) {
	pkg, err := s.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}

	switch pkg.Status {
	case types.PackageUploaded, types.PackageDownloaded:
	case types.PackageExpired:
		return nil, types.NewValidationError(types.ErrCodePackageExpired,
			fmt.Sprintf("package %s has expired; create a new export", id), nil)
	default:
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("package %s is not downloadable (status %s)", id, pkg.Status), nil)
	}

	urlTTL := time.Duration(s.cfg.Export.URLTTLHours) * time.Hour
	if remaining := time.Until(pkg.ExpiresAt); urlTTL > remaining {
		urlTTL = remaining
	}

	url, err := s.store.SignDownloadURL(ctx, pkg.StorageKey, urlTTL)
	if err != nil {
		return nil, err
	}

	urlExpiry := time.Now().UTC().Add(urlTTL)
	if err := s.packages.UpdateDownloadURL(ctx, id, url, urlExpiry); err != nil {
		return nil, err
	}

	pkg.DownloadURL = url
	pkg.PresignedURLExpiry = &urlExpiry
	return pkg, nil
}

// ConfirmDownload sets the best-effort downloaded marker. Failures are not
// safety-critical and surface only as an error return for logging.
func (s *Service) ConfirmDownload(ctx context.Context, id string) error {
	return s.packages.MarkDownloaded(ctx, id)
}
