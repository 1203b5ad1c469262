package referral

import (
	"context"
	"time"

	"github.com/carelink/referral-core/internal/workflow"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/monitoring"
	"github.com/carelink/referral-core/pkg/types"
)

// Service applies validated workflow transitions to stored referrals. All
// status changes go through here (directly or via the automation sweeps);
// nothing else writes workflow columns.
type Service struct {
	repository Repository
	logger     *logger.Logger
}

// NewService creates a new referral workflow service
func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{
		repository: repo,
		logger:     log,
	}
}

// GetReferral retrieves one referral by ID.
func (s *Service) GetReferral(ctx context.Context, id string) (*types.Referral, error) {
	return s.repository.Get(ctx, id)
}

// TransitionReferral validates and persists one workflow transition. On a
// concurrency conflict the caller receives a distinct conflict error and is
// expected to re-fetch and recompute.
func (s *Service) TransitionReferral(ctx context.Context, id string, targetStatus types.WorkflowStatus, reason, actorID string) (*types.Referral, error) {
	ref, err := s.repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := workflow.ComputeTransition(
		ref.ClientState, ref.WorkflowStatus, targetStatus, reason, time.Now().UTC())
	if err != nil {
		monitoring.RecordTransition(string(targetStatus), false)
		s.logger.WithFields(map[string]interface{}{
			"referral_id":   id,
			"from_status":   string(ref.WorkflowStatus),
			"target_status": string(targetStatus),
		}).WithError(err).Warn("Workflow transition rejected")
		return nil, err
	}

	updated, err := s.repository.ApplyTransition(ctx, id, ref.WorkflowStatus, result, actorID)
	if err != nil {
		monitoring.RecordTransition(string(targetStatus), false)
		return nil, err
	}

	monitoring.RecordTransition(string(targetStatus), true)
	s.logger.Audit(actorID, "workflow_transition", "referral:"+id, true, map[string]interface{}{
		"from_status": string(ref.WorkflowStatus),
		"to_status":   string(targetStatus),
	})

	return updated, nil
}

// GetNextValidStatuses returns the statuses a referral may transition to
// from its current position.
func (s *Service) GetNextValidStatuses(ctx context.Context, id string) ([]types.WorkflowStatus, error) {
	ref, err := s.repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.NextStatuses(ref.WorkflowStatus)
}
