package types

import "time"

// ClientState is the coarse-grained referral lifecycle phase.
type ClientState string

const (
	StateProspective ClientState = "prospective"
	StatePending     ClientState = "pending"
	StateActive      ClientState = "active"
	StateInactive    ClientState = "inactive"
)

// WorkflowStatus is the fine-grained referral lifecycle value. Every status
// maps to exactly one ClientState; the mapping lives in internal/workflow.
type WorkflowStatus string

const (
	// Pre-staging (prospective)
	StatusReferralSubmitted  WorkflowStatus = "referral_submitted"
	StatusUnderReview        WorkflowStatus = "under_review"
	StatusDocumentsRequested WorkflowStatus = "documents_requested"
	StatusDocumentsReceived  WorkflowStatus = "documents_received"
	StatusInsuranceVerified  WorkflowStatus = "insurance_verified"
	StatusIntakeScheduled    WorkflowStatus = "intake_scheduled"
	StatusIntakeCompleted    WorkflowStatus = "intake_completed"

	// Staging (pending)
	StatusStagingStarted     WorkflowStatus = "staging_started"
	StatusRecordsRequested   WorkflowStatus = "records_requested"
	StatusRecordsExported    WorkflowStatus = "records_exported"
	StatusMatchingInProgress WorkflowStatus = "matching_in_progress"
	StatusOnHold             WorkflowStatus = "on_hold"

	// Assignment (pending)
	StatusAssignmentPending  WorkflowStatus = "assignment_pending"
	StatusAssignmentDeclined WorkflowStatus = "assignment_declined"
	StatusAssignmentAccepted WorkflowStatus = "assignment_accepted"

	// Acceptance (pending)
	StatusWaitingFirstSession   WorkflowStatus = "waiting_first_session"
	StatusFirstSessionScheduled WorkflowStatus = "first_session_scheduled"

	// Active treatment (active)
	StatusInTreatment      WorkflowStatus = "in_treatment"
	StatusTreatmentPaused  WorkflowStatus = "treatment_paused"
	StatusDischargePlanned WorkflowStatus = "discharge_planned"

	// Completion (inactive, terminal)
	StatusDischarged  WorkflowStatus = "discharged"
	StatusReferredOut WorkflowStatus = "referred_out"
	StatusDeclined    WorkflowStatus = "declined"
	StatusCancelled   WorkflowStatus = "cancelled"
)

// Urgency classifies how quickly a referral needs attention.
type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Referral represents one client's intake case. Business fields are edited
// by staff through the record system; workflow fields change only through
// validated transitions.
type Referral struct {
	ID string `json:"id"`

	// Clinical/contact fields
	FirstName          string  `json:"firstName"`
	LastName           string  `json:"lastName"`
	Email              string  `json:"email"`
	Phone              string  `json:"phone"`
	Age                int     `json:"age"`
	PresentingConcerns string  `json:"presentingConcerns"`
	Urgency            Urgency `json:"urgency"`
	InsuranceProvider  string  `json:"insuranceProvider,omitempty"`
	InsuranceMemberID  string  `json:"insuranceMemberId,omitempty"`

	// Workflow fields
	ClientState      ClientState    `json:"clientState"`
	WorkflowStatus   WorkflowStatus `json:"workflowStatus"`
	MatchingAttempts int            `json:"matchingAttempts"`
	DeclineReason    string         `json:"declineReason,omitempty"`
	DischargeReason  string         `json:"dischargeReason,omitempty"`

	// Phase-event timestamps, set by transition side effects.
	PreStageCompletedAt   *time.Time `json:"preStageCompletedAt,omitempty"`
	StageStartedAt        *time.Time `json:"stageStartedAt,omitempty"`
	DocumentsReceivedAt   *time.Time `json:"documentsReceivedAt,omitempty"`
	InsuranceVerifiedAt   *time.Time `json:"insuranceVerifiedAt,omitempty"`
	IntakeCompletedAt     *time.Time `json:"intakeCompletedAt,omitempty"`
	AssignmentPendingAt   *time.Time `json:"assignmentPendingAt,omitempty"`
	AssignmentCompletedAt *time.Time `json:"assignmentCompletedAt,omitempty"`
	RecordsExportedAt     *time.Time `json:"recordsExportedAt,omitempty"`
	FirstSessionAt        *time.Time `json:"firstSessionAt,omitempty"`
	PendingCompletedAt    *time.Time `json:"pendingCompletedAt,omitempty"`
	DischargedAt          *time.Time `json:"dischargedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReferralFilters narrows listing queries.
type ReferralFilters struct {
	ClientState    ClientState    `json:"clientState,omitempty"`
	WorkflowStatus WorkflowStatus `json:"workflowStatus,omitempty"`
	Urgency        Urgency        `json:"urgency,omitempty"`
	ModifiedBefore *time.Time     `json:"modifiedBefore,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	Offset         int            `json:"offset,omitempty"`
}
