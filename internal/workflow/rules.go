package workflow

import (
	"time"

	"github.com/carelink/referral-core/pkg/types"
)

// InactivityDeclineReason is the reason recorded when a referral is declined
// automatically for inactivity.
const InactivityDeclineReason = "automatically declined due to 30 days of inactivity"

// DefaultInactivityDays is how long a referral may sit unmodified before the
// inactivity rule declines it.
const DefaultInactivityDays = 30

// AutoTransition is a proposed automatic transition for one referral.
type AutoTransition struct {
	Rule         string
	TargetStatus types.WorkflowStatus
	Reason       string
}

// EvaluateAutoTransition applies the automatic transition rules to one
// referral snapshot in fixed priority order and returns the first match, or
// nil when no rule fires. The caller runs the result through
// ComputeTransition like any other transition.
func EvaluateAutoTransition(r *types.Referral, now time.Time, inactivityDays int) *AutoTransition {
	if inactivityDays <= 0 {
		inactivityDays = DefaultInactivityDays
	}

	// Rule 1: scheduled first session time has arrived.
	if r.WorkflowStatus == types.StatusWaitingFirstSession &&
		r.FirstSessionAt != nil && !now.Before(*r.FirstSessionAt) {
		return &AutoTransition{
			Rule:         "first_session_reached",
			TargetStatus: types.StatusInTreatment,
		}
	}

	// Rule 2: declined after prolonged inactivity.
	if r.ClientState != types.StateInactive &&
		now.Sub(r.UpdatedAt) >= time.Duration(inactivityDays)*24*time.Hour {
		return &AutoTransition{
			Rule:         "inactivity_decline",
			TargetStatus: types.StatusDeclined,
			Reason:       InactivityDeclineReason,
		}
	}

	// Rule 3: intake completion time has arrived.
	if r.WorkflowStatus == types.StatusIntakeScheduled &&
		r.IntakeCompletedAt != nil && !now.Before(*r.IntakeCompletedAt) {
		return &AutoTransition{
			Rule:         "intake_completed_reached",
			TargetStatus: types.StatusWaitingFirstSession,
		}
	}

	return nil
}

// slaPhase maps a group of statuses to a phase entry timestamp and a target
// day count.
type slaPhase struct {
	name       string
	targetDays int
	entryAt    func(r *types.Referral) time.Time
}

var slaPhases = map[types.WorkflowStatus]slaPhase{
	types.StatusReferralSubmitted: {"referral_review", 3, createdAt},
	types.StatusUnderReview:       {"referral_review", 3, createdAt},

	types.StatusDocumentsRequested: {"pre_staging", 7, createdAt},
	types.StatusDocumentsReceived:  {"pre_staging", 7, createdAt},
	types.StatusInsuranceVerified:  {"pre_staging", 7, createdAt},
	types.StatusIntakeScheduled:    {"pre_staging", 7, createdAt},
	types.StatusIntakeCompleted:    {"pre_staging", 7, createdAt},

	types.StatusStagingStarted:     {"staging", 5, stageStartedAt},
	types.StatusRecordsRequested:   {"staging", 5, stageStartedAt},
	types.StatusRecordsExported:    {"staging", 5, stageStartedAt},
	types.StatusMatchingInProgress: {"staging", 5, stageStartedAt},
	types.StatusOnHold:             {"staging", 5, stageStartedAt},

	types.StatusAssignmentPending:  {"assignment", 5, assignmentPendingAt},
	types.StatusAssignmentDeclined: {"assignment", 5, assignmentPendingAt},
	types.StatusAssignmentAccepted: {"assignment", 5, assignmentPendingAt},

	types.StatusWaitingFirstSession:   {"acceptance", 10, assignmentCompletedAt},
	types.StatusFirstSessionScheduled: {"acceptance", 10, assignmentCompletedAt},
}

func createdAt(r *types.Referral) time.Time { return r.CreatedAt }

func stageStartedAt(r *types.Referral) time.Time {
	if r.StageStartedAt != nil {
		return *r.StageStartedAt
	}
	return r.CreatedAt
}

func assignmentPendingAt(r *types.Referral) time.Time {
	if r.AssignmentPendingAt != nil {
		return *r.AssignmentPendingAt
	}
	return stageStartedAt(r)
}

func assignmentCompletedAt(r *types.Referral) time.Time {
	if r.AssignmentCompletedAt != nil {
		return *r.AssignmentCompletedAt
	}
	return stageStartedAt(r)
}

// EvaluateSLA checks one referral snapshot against its phase target and
// returns a violation once the elapsed time exceeds it, escalating to
// critical past 1.5x the target. Inactive referrals are skipped, as are
// statuses without a phase target (active treatment). No mutation occurs.
func EvaluateSLA(r *types.Referral, now time.Time) *types.SLAViolation {
	if r.ClientState == types.StateInactive {
		return nil
	}

	phase, ok := slaPhases[r.WorkflowStatus]
	if !ok {
		return nil
	}

	elapsed := now.Sub(phase.entryAt(r))
	elapsedDays := elapsed.Hours() / 24
	if elapsedDays <= float64(phase.targetDays) {
		return nil
	}

	severity := types.SLAWarning
	if elapsedDays > 1.5*float64(phase.targetDays) {
		severity = types.SLACritical
	}

	return &types.SLAViolation{
		ReferralID:  r.ID,
		Status:      r.WorkflowStatus,
		Phase:       phase.name,
		TargetDays:  phase.targetDays,
		ElapsedDays: elapsedDays,
		Severity:    severity,
	}
}
