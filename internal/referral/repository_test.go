package referral

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/referral-core/internal/workflow"
	"github.com/carelink/referral-core/pkg/database"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/types"
)

func setupTestRepository(t *testing.T) (*SQLRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewSQLRepository(&database.DB{DB: db}, logger.New("error"))

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

var referralRowColumns = []string{
	"id", "first_name", "last_name", "email", "phone", "age", "presenting_concerns",
	"urgency", "insurance_provider", "insurance_member_id",
	"client_state", "workflow_status", "matching_attempts",
	"decline_reason", "discharge_reason",
	"pre_stage_completed_at", "stage_started_at", "documents_received_at",
	"insurance_verified_at", "intake_completed_at", "assignment_pending_at",
	"assignment_completed_at", "records_exported_at", "first_session_at",
	"pending_completed_at", "discharged_at",
	"created_at", "updated_at",
}

func referralRow(id string, state types.ClientState, status types.WorkflowStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(referralRowColumns).AddRow(
		id, "Ada", "Lovelace", "ada@example.com", "555-0100", 30, "anxiety",
		"routine", nil, nil,
		string(state), string(status), 0,
		nil, nil,
		nil, nil, nil,
		nil, nil, nil,
		nil, nil, nil,
		nil, nil,
		now, now,
	)
}

func TestSQLRepositoryGet(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM referrals WHERE id").
		WithArgs("ref-1").
		WillReturnRows(referralRow("ref-1", types.StateProspective, types.StatusUnderReview))

	ref, err := repo.Get(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", ref.ID)
	assert.Equal(t, types.StateProspective, ref.ClientState)
	assert.Equal(t, types.StatusUnderReview, ref.WorkflowStatus)
	assert.Nil(t, ref.StageStartedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryGetNotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM referrals WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(referralRowColumns))

	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryListFiltersByState(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM referrals WHERE 1=1 AND client_state").
		WithArgs("pending").
		WillReturnRows(referralRow("ref-1", types.StatePending, types.StatusStagingStarted))

	refs, err := repo.List(context.Background(), &types.ReferralFilters{
		ClientState: types.StatePending,
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, types.StatePending, refs[0].ClientState)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryApplyTransition(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	result := &workflow.TransitionResult{
		NewState:  types.StateProspective,
		NewStatus: types.StatusUnderReview,
		TimestampUpdates: map[workflow.TimestampField]time.Time{},
	}

	// The update is conditional on the expected status still being stored.
	mock.ExpectExec("UPDATE referrals SET (.+) WHERE id = (.+) AND workflow_status =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM referrals WHERE id").
		WithArgs("ref-1").
		WillReturnRows(referralRow("ref-1", types.StateProspective, types.StatusUnderReview))

	updated, err := repo.ApplyTransition(context.Background(), "ref-1",
		types.StatusReferralSubmitted, result, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnderReview, updated.WorkflowStatus)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryApplyTransitionConflict(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	result := &workflow.TransitionResult{
		NewState:  types.StateProspective,
		NewStatus: types.StatusUnderReview,
		TimestampUpdates: map[workflow.TimestampField]time.Time{},
	}

	// Zero rows affected: another writer moved the referral first. The
	// repository re-fetches to distinguish a conflict from a deletion.
	mock.ExpectExec("UPDATE referrals SET (.+) WHERE id = (.+) AND workflow_status =").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM referrals WHERE id").
		WithArgs("ref-1").
		WillReturnRows(referralRow("ref-1", types.StateProspective, types.StatusDocumentsRequested))

	_, err := repo.ApplyTransition(context.Background(), "ref-1",
		types.StatusReferralSubmitted, result, "staff-1")
	assert.True(t, types.IsCode(err, types.ErrCodeConflict))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryApplyTransitionGone(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	result := &workflow.TransitionResult{
		NewState:  types.StateProspective,
		NewStatus: types.StatusUnderReview,
		TimestampUpdates: map[workflow.TimestampField]time.Time{},
	}

	mock.ExpectExec("UPDATE referrals SET (.+) WHERE id = (.+) AND workflow_status =").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM referrals WHERE id").
		WithArgs("ref-1").
		WillReturnRows(sqlmock.NewRows(referralRowColumns))

	_, err := repo.ApplyTransition(context.Background(), "ref-1",
		types.StatusReferralSubmitted, result, "staff-1")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepositoryCreate(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO referrals").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ref, err := repo.Create(context.Background(), &types.Referral{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Age:       30,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, types.StateProspective, ref.ClientState)
	assert.Equal(t, types.StatusReferralSubmitted, ref.WorkflowStatus)
	assert.Equal(t, types.UrgencyRoutine, ref.Urgency)

	assert.NoError(t, mock.ExpectationsWereMet())
}
