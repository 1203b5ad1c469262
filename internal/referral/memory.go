package referral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carelink/referral-core/internal/workflow"
	"github.com/carelink/referral-core/pkg/types"
	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository with the same optimistic
// concurrency contract as the SQL implementation. Used in tests and local
// development.
type MemoryRepository struct {
	mu        sync.RWMutex
	referrals map[string]*types.Referral
}

// NewMemoryRepository creates an empty in-memory referral repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{referrals: make(map[string]*types.Referral)}
}

// Get retrieves a referral by ID
func (m *MemoryRepository) Get(ctx context.Context, id string) (*types.Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.referrals[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("referral not found: %s", id))
	}
	return copyReferral(ref), nil
}

// List retrieves referrals matching the given filters
func (m *MemoryRepository) List(ctx context.Context, filters *types.ReferralFilters) ([]*types.Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Referral
	for _, ref := range m.referrals {
		if filters != nil {
			if filters.ClientState != "" && ref.ClientState != filters.ClientState {
				continue
			}
			if filters.WorkflowStatus != "" && ref.WorkflowStatus != filters.WorkflowStatus {
				continue
			}
			if filters.Urgency != "" && ref.Urgency != filters.Urgency {
				continue
			}
			if filters.ModifiedBefore != nil && !ref.UpdatedAt.Before(*filters.ModifiedBefore) {
				continue
			}
		}
		out = append(out, copyReferral(ref))
	}
	return out, nil
}

// Create inserts a new referral in its initial workflow position
func (m *MemoryRepository) Create(ctx context.Context, ref *types.Referral) (*types.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyReferral(ref)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.ClientState == "" {
		stored.ClientState = types.StateProspective
	}
	if stored.WorkflowStatus == "" {
		stored.WorkflowStatus = types.StatusReferralSubmitted
	}
	if stored.Urgency == "" {
		stored.Urgency = types.UrgencyRoutine
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	m.referrals[stored.ID] = stored
	return copyReferral(stored), nil
}

// ApplyTransition persists a computed transition under the same conditional
// check as the SQL implementation.
func (m *MemoryRepository) ApplyTransition(ctx context.Context, id string, expectedStatus types.WorkflowStatus, result *workflow.TransitionResult, actorID string) (*types.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.referrals[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("referral not found: %s", id))
	}

	if ref.WorkflowStatus != expectedStatus {
		return nil, types.NewConflictError(types.ErrCodeConflict,
			fmt.Sprintf("referral %s moved from %s to %s concurrently; re-fetch and retry",
				id, expectedStatus, ref.WorkflowStatus))
	}

	updated := copyReferral(ref)
	updated.ClientState = result.NewState
	updated.WorkflowStatus = result.NewStatus
	updated.UpdatedAt = time.Now().UTC()

	for field, ts := range result.TimestampUpdates {
		setTimestamp(updated, field, ts)
	}

	if result.IncrementMatchingAttempts {
		updated.MatchingAttempts++
	}

	switch result.ReasonField {
	case workflow.ReasonDecline:
		updated.DeclineReason = result.Reason
	case workflow.ReasonDischarge:
		updated.DischargeReason = result.Reason
	}

	m.referrals[id] = updated
	return copyReferral(updated), nil
}

func setTimestamp(ref *types.Referral, field workflow.TimestampField, ts time.Time) {
	v := ts
	switch field {
	case workflow.FieldPreStageCompletedAt:
		ref.PreStageCompletedAt = &v
	case workflow.FieldStageStartedAt:
		ref.StageStartedAt = &v
	case workflow.FieldDocumentsReceivedAt:
		ref.DocumentsReceivedAt = &v
	case workflow.FieldInsuranceVerifiedAt:
		ref.InsuranceVerifiedAt = &v
	case workflow.FieldIntakeCompletedAt:
		ref.IntakeCompletedAt = &v
	case workflow.FieldAssignmentPendingAt:
		ref.AssignmentPendingAt = &v
	case workflow.FieldAssignmentCompletedAt:
		ref.AssignmentCompletedAt = &v
	case workflow.FieldRecordsExportedAt:
		ref.RecordsExportedAt = &v
	case workflow.FieldFirstSessionAt:
		ref.FirstSessionAt = &v
	case workflow.FieldPendingCompletedAt:
		ref.PendingCompletedAt = &v
	case workflow.FieldDischargedAt:
		ref.DischargedAt = &v
	}
}

func copyReferral(ref *types.Referral) *types.Referral {
	c := *ref
	c.PreStageCompletedAt = copyTime(ref.PreStageCompletedAt)
	c.StageStartedAt = copyTime(ref.StageStartedAt)
	c.DocumentsReceivedAt = copyTime(ref.DocumentsReceivedAt)
	c.InsuranceVerifiedAt = copyTime(ref.InsuranceVerifiedAt)
	c.IntakeCompletedAt = copyTime(ref.IntakeCompletedAt)
	c.AssignmentPendingAt = copyTime(ref.AssignmentPendingAt)
	c.AssignmentCompletedAt = copyTime(ref.AssignmentCompletedAt)
	c.RecordsExportedAt = copyTime(ref.RecordsExportedAt)
	c.FirstSessionAt = copyTime(ref.FirstSessionAt)
	c.PendingCompletedAt = copyTime(ref.PendingCompletedAt)
	c.DischargedAt = copyTime(ref.DischargedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
