package export

import (
	"context"

	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/types"
)

// EventPackageReady is emitted once a package is uploaded and downloadable.
const EventPackageReady = "intake_package_ready"

// NotificationSink receives package events. Fire-and-forget: failures are
// logged by the caller and never fail the package operation.
type NotificationSink interface {
	Send(ctx context.Context, event *types.PackageEvent) error
}

// LogNotificationSink logs events instead of delivering them. Delivery to
// the records system is an external collaborator's responsibility; this is
// the default sink until one is wired in.
type LogNotificationSink struct {
	logger *logger.Logger
}

// NewLogNotificationSink creates a logging notification sink
func NewLogNotificationSink(log *logger.Logger) *LogNotificationSink {
	return &LogNotificationSink{logger: log}
}

// Send logs the event.
func (s *LogNotificationSink) Send(ctx context.Context, event *types.PackageEvent) error {
	s.logger.WithFields(map[string]interface{}{
		"kind":        event.Kind,
		"package_id":  event.PackageID,
		"referral_id": event.ReferralID,
		"url_expiry":  event.URLExpiry,
	}).Info("Package event emitted")
	return nil
}
