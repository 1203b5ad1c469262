package referral

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/carelink/referral-core/internal/workflow"
	"github.com/carelink/referral-core/pkg/database"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/types"
	"github.com/google/uuid"
)

// Repository is the referral persistence contract. ApplyTransition must be
// conditional on the stored workflow status still matching expectedStatus;
// a mismatch is a conflict the caller resolves by re-fetching, never a
// silent overwrite.
type Repository interface {
	Get(ctx context.Context, id string) (*types.Referral, error)
	List(ctx context.Context, filters *types.ReferralFilters) ([]*types.Referral, error)
	Create(ctx context.Context, r *types.Referral) (*types.Referral, error)
	ApplyTransition(ctx context.Context, id string, expectedStatus types.WorkflowStatus, result *workflow.TransitionResult, actorID string) (*types.Referral, error)
}

// SQLRepository is the PostgreSQL-backed Repository implementation.
type SQLRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewSQLRepository creates a new PostgreSQL referral repository
func NewSQLRepository(db *database.DB, log *logger.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: log,
	}
}

const referralColumns = `
	id, first_name, last_name, email, phone, age, presenting_concerns,
	urgency, insurance_provider, insurance_member_id,
	client_state, workflow_status, matching_attempts,
	decline_reason, discharge_reason,
	pre_stage_completed_at, stage_started_at, documents_received_at,
	insurance_verified_at, intake_completed_at, assignment_pending_at,
	assignment_completed_at, records_exported_at, first_session_at,
	pending_completed_at, discharged_at,
	created_at, updated_at`

// Get retrieves a referral by ID
func (r *SQLRepository) Get(ctx context.Context, id string) (*types.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1`

	ref, err := scanReferral(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound,
				fmt.Sprintf("referral not found: %s", id))
		}
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}

	return ref, nil
}

// List retrieves referrals matching the given filters
func (r *SQLRepository) List(ctx context.Context, filters *types.ReferralFilters) ([]*types.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filters != nil {
		if filters.ClientState != "" {
			query += fmt.Sprintf(" AND client_state = $%d", argIndex)
			args = append(args, string(filters.ClientState))
			argIndex++
		}
		if filters.WorkflowStatus != "" {
			query += fmt.Sprintf(" AND workflow_status = $%d", argIndex)
			args = append(args, string(filters.WorkflowStatus))
			argIndex++
		}
		if filters.Urgency != "" {
			query += fmt.Sprintf(" AND urgency = $%d", argIndex)
			args = append(args, string(filters.Urgency))
			argIndex++
		}
		if filters.ModifiedBefore != nil {
			query += fmt.Sprintf(" AND updated_at < $%d", argIndex)
			args = append(args, *filters.ModifiedBefore)
			argIndex++
		}
	}

	query += " ORDER BY created_at DESC"

	if filters != nil && filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
	}
	if filters != nil && filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	var referrals []*types.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral row: %w", err)
		}
		referrals = append(referrals, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral rows: %w", err)
	}

	return referrals, nil
}

// Create inserts a new referral in its initial workflow position
func (r *SQLRepository) Create(ctx context.Context, ref *types.Referral) (*types.Referral, error) {
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}
	if ref.ClientState == "" {
		ref.ClientState = types.StateProspective
	}
	if ref.WorkflowStatus == "" {
		ref.WorkflowStatus = types.StatusReferralSubmitted
	}
	if ref.Urgency == "" {
		ref.Urgency = types.UrgencyRoutine
	}
	ref.CreatedAt = time.Now().UTC()
	ref.UpdatedAt = ref.CreatedAt

	query := `
		INSERT INTO referrals (
			id, first_name, last_name, email, phone, age, presenting_concerns,
			urgency, insurance_provider, insurance_member_id,
			client_state, workflow_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		ref.ID,
		ref.FirstName,
		ref.LastName,
		ref.Email,
		ref.Phone,
		ref.Age,
		ref.PresentingConcerns,
		string(ref.Urgency),
		ref.InsuranceProvider,
		ref.InsuranceMemberID,
		string(ref.ClientState),
		string(ref.WorkflowStatus),
		ref.CreatedAt,
		ref.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create referral: %w", err)
	}

	r.logger.WithReferralID(ref.ID).Info("Created referral")
	return ref, nil
}

// ApplyTransition persists a computed transition under an optimistic
// concurrency check on workflow_status. Zero rows affected means either the
// referral is gone or another writer got there first.
func (r *SQLRepository) ApplyTransition(ctx context.Context, id string, expectedStatus types.WorkflowStatus, result *workflow.TransitionResult, actorID string) (*types.Referral, error) {
	sets := []string{
		"client_state = $1",
		"workflow_status = $2",
		"updated_at = $3",
	}
	args := []interface{}{
		string(result.NewState),
		string(result.NewStatus),
		time.Now().UTC(),
	}
	argIndex := 4

	for field, ts := range result.TimestampUpdates {
		sets = append(sets, fmt.Sprintf("%s = $%d", string(field), argIndex))
		args = append(args, ts)
		argIndex++
	}

	if result.IncrementMatchingAttempts {
		sets = append(sets, "matching_attempts = matching_attempts + 1")
	}

	if result.ReasonField != "" {
		sets = append(sets, fmt.Sprintf("%s = $%d", string(result.ReasonField), argIndex))
		args = append(args, result.Reason)
		argIndex++
	}

	query := fmt.Sprintf(
		"UPDATE referrals SET %s WHERE id = $%d AND workflow_status = $%d",
		strings.Join(sets, ", "), argIndex, argIndex+1)
	args = append(args, id, string(expectedStatus))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		// Distinguish a stale status from a missing referral.
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, types.NewConflictError(types.ErrCodeConflict,
			fmt.Sprintf("referral %s moved from %s to %s concurrently; re-fetch and retry",
				id, expectedStatus, current.WorkflowStatus))
	}

	updated, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"referral_id": id,
		"from_status": string(expectedStatus),
		"to_status":   string(result.NewStatus),
		"actor_id":    actorID,
	}).Info("Applied workflow transition")

	return updated, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReferral(row rowScanner) (*types.Referral, error) {
	var ref types.Referral
	var phone, concerns, insProvider, insMemberID, declineReason, dischargeReason sql.NullString
	var age sql.NullInt64
	var state, status string
	var preStage, stageStart, docsReceived, insVerified, intakeDone,
		assignPending, assignDone, recordsExported, firstSession,
		pendingDone, discharged sql.NullTime

	err := row.Scan(
		&ref.ID, &ref.FirstName, &ref.LastName, &ref.Email, &phone, &age,
		&concerns, &ref.Urgency, &insProvider, &insMemberID,
		&state, &status, &ref.MatchingAttempts,
		&declineReason, &dischargeReason,
		&preStage, &stageStart, &docsReceived,
		&insVerified, &intakeDone, &assignPending,
		&assignDone, &recordsExported, &firstSession,
		&pendingDone, &discharged,
		&ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ref.Phone = phone.String
	ref.PresentingConcerns = concerns.String
	ref.InsuranceProvider = insProvider.String
	ref.InsuranceMemberID = insMemberID.String
	ref.DeclineReason = declineReason.String
	ref.DischargeReason = dischargeReason.String
	ref.Age = int(age.Int64)
	ref.ClientState = types.ClientState(state)
	ref.WorkflowStatus = types.WorkflowStatus(status)

	ref.PreStageCompletedAt = nullableTime(preStage)
	ref.StageStartedAt = nullableTime(stageStart)
	ref.DocumentsReceivedAt = nullableTime(docsReceived)
	ref.InsuranceVerifiedAt = nullableTime(insVerified)
	ref.IntakeCompletedAt = nullableTime(intakeDone)
	ref.AssignmentPendingAt = nullableTime(assignPending)
	ref.AssignmentCompletedAt = nullableTime(assignDone)
	ref.RecordsExportedAt = nullableTime(recordsExported)
	ref.FirstSessionAt = nullableTime(firstSession)
	ref.PendingCompletedAt = nullableTime(pendingDone)
	ref.DischargedAt = nullableTime(discharged)

	return &ref, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
