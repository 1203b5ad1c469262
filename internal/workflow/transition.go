package workflow

import (
	"fmt"
	"time"

	"github.com/carelink/referral-core/pkg/types"
)

// TimestampField names a referral phase-event timestamp column.
type TimestampField string

const (
	FieldPreStageCompletedAt   TimestampField = "pre_stage_completed_at"
	FieldStageStartedAt        TimestampField = "stage_started_at"
	FieldDocumentsReceivedAt   TimestampField = "documents_received_at"
	FieldInsuranceVerifiedAt   TimestampField = "insurance_verified_at"
	FieldIntakeCompletedAt     TimestampField = "intake_completed_at"
	FieldAssignmentPendingAt   TimestampField = "assignment_pending_at"
	FieldAssignmentCompletedAt TimestampField = "assignment_completed_at"
	FieldRecordsExportedAt     TimestampField = "records_exported_at"
	FieldFirstSessionAt        TimestampField = "first_session_at"
	FieldPendingCompletedAt    TimestampField = "pending_completed_at"
	FieldDischargedAt          TimestampField = "discharged_at"
)

// ReasonField names the referral column a required reason lands in.
type ReasonField string

const (
	ReasonDecline   ReasonField = "decline_reason"
	ReasonDischarge ReasonField = "discharge_reason"
)

// statusTimestamps maps target statuses to the timestamp they stamp.
var statusTimestamps = map[types.WorkflowStatus]TimestampField{
	types.StatusDocumentsReceived:  FieldDocumentsReceivedAt,
	types.StatusInsuranceVerified:  FieldInsuranceVerifiedAt,
	types.StatusIntakeCompleted:    FieldIntakeCompletedAt,
	types.StatusAssignmentPending:  FieldAssignmentPendingAt,
	types.StatusAssignmentAccepted: FieldAssignmentCompletedAt,
	types.StatusRecordsExported:    FieldRecordsExportedAt,
	types.StatusDischarged:         FieldDischargedAt,
}

// reasonFields maps target statuses that require a reason to the column the
// reason is stored in.
var reasonFields = map[types.WorkflowStatus]ReasonField{
	types.StatusDeclined:   ReasonDecline,
	types.StatusDischarged: ReasonDischarge,
}

// TransitionResult describes the effects of one validated transition. It is
// a value computed without side effects; the caller persists it.
type TransitionResult struct {
	NewState                  types.ClientState
	NewStatus                 types.WorkflowStatus
	TimestampUpdates          map[TimestampField]time.Time
	IncrementMatchingAttempts bool
	ReasonField               ReasonField
	Reason                    string
}

// ComputeTransition validates currentStatus→targetStatus and derives the new
// state, timestamp side effects, counter increments, and required reasons.
// The function is pure: rejection leaves nothing mutated anywhere.
func ComputeTransition(currentState types.ClientState, currentStatus, targetStatus types.WorkflowStatus, reason string, now time.Time) (*TransitionResult, error) {
	allowed, err := NextStatuses(currentStatus)
	if err != nil {
		return nil, err
	}

	if _, err := StateOf(targetStatus); err != nil {
		return nil, err
	}

	permitted := false
	for _, next := range allowed {
		if next == targetStatus {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, types.NewTransitionError(types.ErrCodeInvalidStatusTransition,
			fmt.Sprintf("cannot transition from %s to %s", currentStatus, targetStatus),
			map[string]interface{}{
				"current_status": string(currentStatus),
				"target_status":  string(targetStatus),
				"allowed":        allowed,
			})
	}

	newState, err := StateOf(targetStatus)
	if err != nil {
		return nil, err
	}

	// Guards against the status and state tables drifting out of sync.
	if newState != currentState && !isLegalStateChange(currentState, newState) {
		return nil, types.NewTransitionError(types.ErrCodeInvalidStateTransition,
			fmt.Sprintf("status transition %s→%s implies illegal state change %s→%s",
				currentStatus, targetStatus, currentState, newState),
			map[string]interface{}{
				"current_state": string(currentState),
				"target_state":  string(newState),
			})
	}

	if reasonField, ok := reasonFields[targetStatus]; ok && reason == "" {
		return nil, types.NewTransitionError(types.ErrCodeReasonRequired,
			fmt.Sprintf("transition to %s requires a non-empty reason", targetStatus),
			map[string]interface{}{"reason_field": string(reasonField)})
	}

	result := &TransitionResult{
		NewState:         newState,
		NewStatus:        targetStatus,
		TimestampUpdates: make(map[TimestampField]time.Time),
	}

	// State-boundary timestamps.
	if currentState == types.StateProspective && newState != types.StateProspective {
		result.TimestampUpdates[FieldPreStageCompletedAt] = now
	}
	if newState == types.StatePending && currentState != types.StatePending {
		result.TimestampUpdates[FieldStageStartedAt] = now
	}
	if newState == types.StateActive && currentState != types.StateActive {
		result.TimestampUpdates[FieldFirstSessionAt] = now
		result.TimestampUpdates[FieldPendingCompletedAt] = now
	}

	// Status-specific timestamps.
	if field, ok := statusTimestamps[targetStatus]; ok {
		result.TimestampUpdates[field] = now
	}

	// One matching cycle ends when an assignment is declined. Re-entering
	// matching_in_progress afterwards does not count again.
	if targetStatus == types.StatusAssignmentDeclined {
		result.IncrementMatchingAttempts = true
	}

	if reasonField, ok := reasonFields[targetStatus]; ok {
		result.ReasonField = reasonField
		result.Reason = reason
	}

	return result, nil
}
