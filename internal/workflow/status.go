// Package workflow is the single choke point for referral state and status
// changes. It is pure logic over fixed in-memory tables; no other code path
// may mutate a referral's workflow status directly.
package workflow

import (
	"fmt"

	"github.com/carelink/referral-core/pkg/types"
)

// statusStates maps every workflow status to exactly one client state. A
// status missing from this table is unknown to the system.
var statusStates = map[types.WorkflowStatus]types.ClientState{
	// Pre-staging
	types.StatusReferralSubmitted:  types.StateProspective,
	types.StatusUnderReview:        types.StateProspective,
	types.StatusDocumentsRequested: types.StateProspective,
	types.StatusDocumentsReceived:  types.StateProspective,
	types.StatusInsuranceVerified:  types.StateProspective,
	types.StatusIntakeScheduled:    types.StateProspective,
	types.StatusIntakeCompleted:    types.StateProspective,

	// Staging
	types.StatusStagingStarted:     types.StatePending,
	types.StatusRecordsRequested:   types.StatePending,
	types.StatusRecordsExported:    types.StatePending,
	types.StatusMatchingInProgress: types.StatePending,
	types.StatusOnHold:             types.StatePending,

	// Assignment
	types.StatusAssignmentPending:  types.StatePending,
	types.StatusAssignmentDeclined: types.StatePending,
	types.StatusAssignmentAccepted: types.StatePending,

	// Acceptance
	types.StatusWaitingFirstSession:   types.StatePending,
	types.StatusFirstSessionScheduled: types.StatePending,

	// Active treatment
	types.StatusInTreatment:      types.StateActive,
	types.StatusTreatmentPaused:  types.StateActive,
	types.StatusDischargePlanned: types.StateActive,

	// Completion
	types.StatusDischarged:  types.StateInactive,
	types.StatusReferredOut: types.StateInactive,
	types.StatusDeclined:    types.StateInactive,
	types.StatusCancelled:   types.StateInactive,
}

// stateTransitions lists the legal client-state edges. Inactive is terminal.
var stateTransitions = map[types.ClientState][]types.ClientState{
	types.StateProspective: {types.StatePending, types.StateInactive},
	types.StatePending:     {types.StateActive, types.StateInactive},
	types.StateActive:      {types.StateInactive},
	types.StateInactive:    {},
}

// exitStatuses are reachable from any non-terminal pre-treatment status.
var exitStatuses = []types.WorkflowStatus{
	types.StatusDeclined,
	types.StatusCancelled,
	types.StatusReferredOut,
}

// statusTransitions lists the allowed next statuses per status. The terminal
// statuses (discharged, referred_out, declined, cancelled) have no entries.
var statusTransitions = map[types.WorkflowStatus][]types.WorkflowStatus{
	types.StatusReferralSubmitted: withExits(
		types.StatusUnderReview,
		types.StatusDocumentsRequested,
	),
	types.StatusUnderReview: withExits(
		types.StatusDocumentsRequested,
		types.StatusInsuranceVerified,
	),
	types.StatusDocumentsRequested: withExits(
		types.StatusDocumentsReceived,
	),
	types.StatusDocumentsReceived: withExits(
		types.StatusInsuranceVerified,
	),
	types.StatusInsuranceVerified: withExits(
		types.StatusIntakeScheduled,
	),
	types.StatusIntakeScheduled: withExits(
		types.StatusIntakeCompleted,
		types.StatusWaitingFirstSession,
	),
	types.StatusIntakeCompleted: withExits(
		types.StatusStagingStarted,
	),
	types.StatusStagingStarted: withExits(
		types.StatusRecordsRequested,
		types.StatusRecordsExported,
		types.StatusMatchingInProgress,
		types.StatusOnHold,
	),
	types.StatusRecordsRequested: withExits(
		types.StatusRecordsExported,
		types.StatusOnHold,
	),
	types.StatusRecordsExported: withExits(
		types.StatusMatchingInProgress,
		types.StatusWaitingFirstSession,
		types.StatusOnHold,
	),
	types.StatusMatchingInProgress: withExits(
		types.StatusRecordsExported,
		types.StatusAssignmentPending,
		types.StatusOnHold,
	),
	types.StatusOnHold: withExits(
		types.StatusMatchingInProgress,
		types.StatusWaitingFirstSession,
	),
	types.StatusAssignmentPending: withExits(
		types.StatusAssignmentAccepted,
		types.StatusAssignmentDeclined,
		types.StatusOnHold,
	),
	types.StatusAssignmentDeclined: withExits(
		types.StatusMatchingInProgress,
	),
	types.StatusAssignmentAccepted: withExits(
		types.StatusRecordsExported,
		types.StatusWaitingFirstSession,
	),
	types.StatusWaitingFirstSession: withExits(
		types.StatusFirstSessionScheduled,
		types.StatusInTreatment,
		types.StatusOnHold,
	),
	types.StatusFirstSessionScheduled: withExits(
		types.StatusInTreatment,
		types.StatusOnHold,
	),
	types.StatusInTreatment: {
		types.StatusTreatmentPaused,
		types.StatusDischargePlanned,
		types.StatusDischarged,
		types.StatusReferredOut,
	},
	types.StatusTreatmentPaused: {
		types.StatusInTreatment,
		types.StatusDischargePlanned,
		types.StatusDischarged,
		types.StatusReferredOut,
	},
	types.StatusDischargePlanned: {
		types.StatusInTreatment,
		types.StatusDischarged,
		types.StatusReferredOut,
	},
	types.StatusDischarged:  {},
	types.StatusReferredOut: {},
	types.StatusDeclined:    {},
	types.StatusCancelled:   {},
}

func withExits(statuses ...types.WorkflowStatus) []types.WorkflowStatus {
	return append(statuses, exitStatuses...)
}

// StateOf returns the client state a status belongs to.
func StateOf(status types.WorkflowStatus) (types.ClientState, error) {
	state, ok := statusStates[status]
	if !ok {
		return "", types.NewTransitionError(types.ErrCodeUnknownStatus,
			fmt.Sprintf("unknown workflow status: %s", status), nil)
	}
	return state, nil
}

// NextStatuses returns a copy of the allowed next statuses for a status.
func NextStatuses(status types.WorkflowStatus) ([]types.WorkflowStatus, error) {
	next, ok := statusTransitions[status]
	if !ok {
		return nil, types.NewTransitionError(types.ErrCodeUnknownStatus,
			fmt.Sprintf("unknown workflow status: %s", status), nil)
	}
	out := make([]types.WorkflowStatus, len(next))
	copy(out, next)
	return out, nil
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(status types.WorkflowStatus) bool {
	next, ok := statusTransitions[status]
	return ok && len(next) == 0
}

// AllStatuses returns every status known to the transition tables.
func AllStatuses() []types.WorkflowStatus {
	out := make([]types.WorkflowStatus, 0, len(statusStates))
	for status := range statusStates {
		out = append(out, status)
	}
	return out
}

// isLegalStateChange reports whether from→to is a legal client-state edge.
func isLegalStateChange(from, to types.ClientState) bool {
	for _, allowed := range stateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
