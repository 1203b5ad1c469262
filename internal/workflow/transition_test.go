package workflow

import (
	"testing"
	"time"

	"github.com/carelink/referral-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestComputeTransitionHappyPath(t *testing.T) {
	result, err := ComputeTransition(
		types.StateProspective, types.StatusReferralSubmitted,
		types.StatusDocumentsRequested, "", testNow)
	require.NoError(t, err)

	assert.Equal(t, types.StateProspective, result.NewState)
	assert.Equal(t, types.StatusDocumentsRequested, result.NewStatus)
	assert.Empty(t, result.TimestampUpdates)
	assert.False(t, result.IncrementMatchingAttempts)
}

func TestComputeTransitionRejectsPhaseSkip(t *testing.T) {
	_, err := ComputeTransition(
		types.StateProspective, types.StatusReferralSubmitted,
		types.StatusInTreatment, "", testNow)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidStatusTransition))
}

func TestComputeTransitionRejectsUnknownStatus(t *testing.T) {
	_, err := ComputeTransition(
		types.StateProspective, "bogus", types.StatusUnderReview, "", testNow)
	assert.True(t, types.IsCode(err, types.ErrCodeUnknownStatus))

	_, err = ComputeTransition(
		types.StateProspective, types.StatusReferralSubmitted, "bogus", "", testNow)
	assert.True(t, types.IsCode(err, types.ErrCodeUnknownStatus))
}

func TestComputeTransitionRejectsTerminalStatus(t *testing.T) {
	_, err := ComputeTransition(
		types.StateInactive, types.StatusDischarged,
		types.StatusInTreatment, "", testNow)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidStatusTransition))
}

// Stale state columns must be caught even when the status edge is valid.
func TestComputeTransitionDetectsStateDrift(t *testing.T) {
	_, err := ComputeTransition(
		types.StateInactive, types.StatusIntakeCompleted,
		types.StatusStagingStarted, "", testNow)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidStateTransition))
}

func TestLeavingProspectiveStampsPreStageAndStageStart(t *testing.T) {
	result, err := ComputeTransition(
		types.StateProspective, types.StatusIntakeCompleted,
		types.StatusStagingStarted, "", testNow)
	require.NoError(t, err)

	assert.Equal(t, types.StatePending, result.NewState)
	assert.Equal(t, testNow, result.TimestampUpdates[FieldPreStageCompletedAt])
	assert.Equal(t, testNow, result.TimestampUpdates[FieldStageStartedAt])
}

func TestEnteringActiveStampsFirstSessionAndPendingCompleted(t *testing.T) {
	result, err := ComputeTransition(
		types.StatePending, types.StatusWaitingFirstSession,
		types.StatusInTreatment, "", testNow)
	require.NoError(t, err)

	assert.Equal(t, types.StateActive, result.NewState)
	assert.Equal(t, testNow, result.TimestampUpdates[FieldFirstSessionAt])
	assert.Equal(t, testNow, result.TimestampUpdates[FieldPendingCompletedAt])
}

func TestStatusSpecificTimestamps(t *testing.T) {
	cases := []struct {
		currentState  types.ClientState
		currentStatus types.WorkflowStatus
		target        types.WorkflowStatus
		reason        string
		field         TimestampField
	}{
		{types.StateProspective, types.StatusDocumentsRequested, types.StatusDocumentsReceived, "", FieldDocumentsReceivedAt},
		{types.StateProspective, types.StatusDocumentsReceived, types.StatusInsuranceVerified, "", FieldInsuranceVerifiedAt},
		{types.StateProspective, types.StatusIntakeScheduled, types.StatusIntakeCompleted, "", FieldIntakeCompletedAt},
		{types.StatePending, types.StatusMatchingInProgress, types.StatusAssignmentPending, "", FieldAssignmentPendingAt},
		{types.StatePending, types.StatusAssignmentPending, types.StatusAssignmentAccepted, "", FieldAssignmentCompletedAt},
		{types.StatePending, types.StatusRecordsRequested, types.StatusRecordsExported, "", FieldRecordsExportedAt},
		{types.StateActive, types.StatusDischargePlanned, types.StatusDischarged, "treatment complete", FieldDischargedAt},
	}

	for _, tc := range cases {
		result, err := ComputeTransition(tc.currentState, tc.currentStatus, tc.target, tc.reason, testNow)
		require.NoError(t, err, "transition to %s", tc.target)
		assert.Equal(t, testNow, result.TimestampUpdates[tc.field],
			"transition to %s must stamp %s", tc.target, tc.field)
	}
}

func TestMatchingAttemptsIncrementOnlyOnAssignmentDeclined(t *testing.T) {
	declined, err := ComputeTransition(
		types.StatePending, types.StatusAssignmentPending,
		types.StatusAssignmentDeclined, "", testNow)
	require.NoError(t, err)
	assert.True(t, declined.IncrementMatchingAttempts)

	// Re-entering matching does not count a second time.
	rematch, err := ComputeTransition(
		types.StatePending, types.StatusAssignmentDeclined,
		types.StatusMatchingInProgress, "", testNow)
	require.NoError(t, err)
	assert.False(t, rematch.IncrementMatchingAttempts)
}

func TestReasonEnforcement(t *testing.T) {
	_, err := ComputeTransition(
		types.StatePending, types.StatusMatchingInProgress,
		types.StatusDeclined, "", testNow)
	assert.True(t, types.IsCode(err, types.ErrCodeReasonRequired))

	result, err := ComputeTransition(
		types.StatePending, types.StatusMatchingInProgress,
		types.StatusDeclined, "client unreachable", testNow)
	require.NoError(t, err)
	assert.Equal(t, ReasonDecline, result.ReasonField)
	assert.Equal(t, "client unreachable", result.Reason)

	_, err = ComputeTransition(
		types.StateActive, types.StatusInTreatment,
		types.StatusDischarged, "", testNow)
	assert.True(t, types.IsCode(err, types.ErrCodeReasonRequired))

	result, err = ComputeTransition(
		types.StateActive, types.StatusInTreatment,
		types.StatusDischarged, "goals met", testNow)
	require.NoError(t, err)
	assert.Equal(t, ReasonDischarge, result.ReasonField)
	assert.Equal(t, "goals met", result.Reason)
}

// Rejection must be side-effect free: the function returns nothing on error
// and must not have touched the inputs.
func TestRejectionLeavesInputsUntouched(t *testing.T) {
	before := types.Referral{
		ClientState:      types.StateProspective,
		WorkflowStatus:   types.StatusReferralSubmitted,
		MatchingAttempts: 2,
	}
	snapshot := before

	_, err := ComputeTransition(snapshot.ClientState, snapshot.WorkflowStatus,
		types.StatusInTreatment, "", testNow)
	require.Error(t, err)
	assert.Equal(t, before, snapshot)
}

func TestFullIntakeJourney(t *testing.T) {
	steps := []struct {
		target types.WorkflowStatus
		reason string
		state  types.ClientState
	}{
		{types.StatusUnderReview, "", types.StateProspective},
		{types.StatusDocumentsRequested, "", types.StateProspective},
		{types.StatusDocumentsReceived, "", types.StateProspective},
		{types.StatusInsuranceVerified, "", types.StateProspective},
		{types.StatusIntakeScheduled, "", types.StateProspective},
		{types.StatusIntakeCompleted, "", types.StateProspective},
		{types.StatusStagingStarted, "", types.StatePending},
		{types.StatusRecordsRequested, "", types.StatePending},
		{types.StatusRecordsExported, "", types.StatePending},
		{types.StatusMatchingInProgress, "", types.StatePending},
		{types.StatusAssignmentPending, "", types.StatePending},
		{types.StatusAssignmentAccepted, "", types.StatePending},
		{types.StatusWaitingFirstSession, "", types.StatePending},
		{types.StatusInTreatment, "", types.StateActive},
		{types.StatusDischargePlanned, "", types.StateActive},
		{types.StatusDischarged, "treatment complete", types.StateInactive},
	}

	state := types.StateProspective
	status := types.StatusReferralSubmitted

	for _, step := range steps {
		result, err := ComputeTransition(state, status, step.target, step.reason, testNow)
		require.NoError(t, err, "step %s→%s", status, step.target)
		assert.Equal(t, step.state, result.NewState, "state after %s", step.target)
		state = result.NewState
		status = result.NewStatus
	}
}
