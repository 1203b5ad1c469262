package referral

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/referral-core/internal/export"
	"github.com/carelink/referral-core/pkg/config"
	"github.com/carelink/referral-core/pkg/encryption"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/types"
)

func setupTestHandler(t *testing.T) (*mux.Router, *MemoryRepository) {
	t.Helper()

	log := logger.New("error")
	repo := NewMemoryRepository()
	svc := NewService(repo, log)

	cfg := &config.Config{
		Storage: config.StorageConfig{Bucket: "test", KeyPrefix: "intake-packages"},
		Export: config.ExportConfig{
			ObjectTTLHours:     168,
			URLTTLHours:        24,
			DefaultPackageType: "intake_basic",
			PackageVersion:     "1.0",
		},
	}
	exportSvc := export.NewService(svc, export.NewMemoryPackageRepository(),
		export.NewMemoryStore(), encryption.NewEphemeralKeyProvider(),
		export.NewLogNotificationSink(log), log, cfg)

	router := mux.NewRouter()
	NewHandler(svc, exportSvc, log).RegisterRoutes(router)
	return router, repo
}

func doRequest(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Actor-ID", "staff-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTransitionEndpoint(t *testing.T) {
	router, repo := setupTestHandler(t)
	ref := seedReferral(t, repo, types.StateProspective, types.StatusReferralSubmitted)

	rec := doRequest(router, "POST", "/api/v1/referrals/"+ref.ID+"/transition",
		transitionRequest{TargetStatus: types.StatusUnderReview})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated types.Referral
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, types.StatusUnderReview, updated.WorkflowStatus)
}

func TestTransitionEndpointRejectsIllegalJump(t *testing.T) {
	router, repo := setupTestHandler(t)
	ref := seedReferral(t, repo, types.StateProspective, types.StatusReferralSubmitted)

	rec := doRequest(router, "POST", "/api/v1/referrals/"+ref.ID+"/transition",
		transitionRequest{TargetStatus: types.StatusInTreatment})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, types.ErrCodeInvalidStatusTransition, body["code"])
}

func TestTransitionEndpointRequiresTargetStatus(t *testing.T) {
	router, repo := setupTestHandler(t)
	ref := seedReferral(t, repo, types.StateProspective, types.StatusReferralSubmitted)

	rec := doRequest(router, "POST", "/api/v1/referrals/"+ref.ID+"/transition",
		map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNextStatusesEndpoint(t *testing.T) {
	router, repo := setupTestHandler(t)
	ref := seedReferral(t, repo, types.StateProspective, types.StatusReferralSubmitted)

	rec := doRequest(router, "GET", "/api/v1/referrals/"+ref.ID+"/next-statuses", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ReferralID   string                 `json:"referralId"`
		NextStatuses []types.WorkflowStatus `json:"nextStatuses"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, ref.ID, body.ReferralID)
	assert.Contains(t, body.NextStatuses, types.StatusUnderReview)
}

func TestCreatePackageEndpoint(t *testing.T) {
	router, repo := setupTestHandler(t)
	ref := seedReferral(t, repo, types.StatePending, types.StatusStagingStarted)

	rec := doRequest(router, "POST", "/api/v1/referrals/"+ref.ID+"/packages", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var summary types.IntakePackageSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, ref.ID, summary.ReferralID)
	assert.Equal(t, types.PackageUploaded, summary.Status)
	assert.NotEmpty(t, summary.DownloadURL)

	// The package creation advanced the referral as a side effect.
	rec = doRequest(router, "GET", "/api/v1/referrals/"+ref.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated types.Referral
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, types.StatusRecordsExported, updated.WorkflowStatus)

	// And the package is retrievable.
	rec = doRequest(router, "GET", "/api/v1/packages/"+summary.PackageID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPackageNotFoundEndpoint(t *testing.T) {
	router, _ := setupTestHandler(t)

	rec := doRequest(router, "GET", "/api/v1/packages/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmDownloadEndpoint(t *testing.T) {
	router, repo := setupTestHandler(t)
	ref := seedReferral(t, repo, types.StatePending, types.StatusStagingStarted)

	rec := doRequest(router, "POST", "/api/v1/referrals/"+ref.ID+"/packages", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var summary types.IntakePackageSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))

	rec = doRequest(router, "POST", "/api/v1/packages/"+summary.PackageID+"/downloaded", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, "POST", "/api/v1/packages/"+summary.PackageID+"/url", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pkg types.IntakePackage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pkg))
	assert.Equal(t, types.PackageDownloaded, pkg.Status)
}
