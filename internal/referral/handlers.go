package referral

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carelink/referral-core/internal/export"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/types"
)

// Handler exposes the produced interface over HTTP: workflow transitions,
// next-status queries, and the package export lifecycle.
type Handler struct {
	referrals *Service
	packages  *export.Service
	logger    *logger.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(referrals *Service, packages *export.Service, log *logger.Logger) *Handler {
	return &Handler{
		referrals: referrals,
		packages:  packages,
		logger:    log,
	}
}

// RegisterRoutes configures HTTP routes on the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/referrals/{id}", h.getReferralHandler).Methods("GET")
	api.HandleFunc("/referrals/{id}/transition", h.transitionHandler).Methods("POST")
	api.HandleFunc("/referrals/{id}/next-statuses", h.nextStatusesHandler).Methods("GET")

	api.HandleFunc("/referrals/{id}/packages", h.createPackageHandler).Methods("POST")
	api.HandleFunc("/referrals/{id}/packages", h.listPackagesHandler).Methods("GET")
	api.HandleFunc("/packages/{id}", h.getPackageHandler).Methods("GET")
	api.HandleFunc("/packages/{id}/url", h.refreshURLHandler).Methods("POST")
	api.HandleFunc("/packages/{id}/downloaded", h.confirmDownloadHandler).Methods("POST")

	h.logger.Info("Referral core routes configured")
}

type transitionRequest struct {
	TargetStatus types.WorkflowStatus `json:"targetStatus"`
	Reason       string               `json:"reason,omitempty"`
}

type createPackageRequest struct {
	PackageType   string `json:"packageType,omitempty"`
	IncludeRawKey bool   `json:"includeRawKey,omitempty"`
}

func (h *Handler) getReferralHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ref, err := h.referrals.GetReferral(r.Context(), id)
	if err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ref)
}

func (h *Handler) transitionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput,
			"invalid request body", nil))
		return
	}
	if req.TargetStatus == "" {
		h.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput,
			"targetStatus is required", nil))
		return
	}

	ref, err := h.referrals.TransitionReferral(r.Context(), id, req.TargetStatus, req.Reason, actorID(r))
	if err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ref)
}

func (h *Handler) nextStatusesHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	statuses, err := h.referrals.GetNextValidStatuses(r.Context(), id)
	if err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"referralId":   id,
		"nextStatuses": statuses,
	})
}

func (h *Handler) createPackageHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req createPackageRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeErrorResponse(w, types.NewValidationError(types.ErrCodeInvalidInput,
				"invalid request body", nil))
			return
		}
	}

	summary, err := h.packages.CreatePackage(r.Context(), id, export.CreateOptions{
		PackageType:   req.PackageType,
		ActorID:       actorID(r),
		IncludeRawKey: req.IncludeRawKey,
	})
	if err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, summary)
}

func (h *Handler) listPackagesHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	packages, err := h.packages.ListPackages(r.Context(), id)
	if err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, packages)
}

func (h *Handler) getPackageHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	pkg, err := h.packages.GetPackage(r.Context(), id)
	if err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, pkg)
}

func (h *Handler) refreshURLHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	pkg, err := h.packages.RefreshDownloadURL(r.Context(), id)
	if err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, pkg)
}

func (h *Handler) confirmDownloadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.packages.ConfirmDownload(r.Context(), id); err != nil {
		h.writeErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// actorID pulls the acting staff identity injected by the auth middleware
// upstream of this core.
func actorID(r *http.Request) string {
	if id := r.Header.Get("X-Actor-ID"); id != "" {
		return id
	}
	return "unknown"
}

func (h *Handler) writeJSONResponse(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handler) writeErrorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	payload := map[string]interface{}{
		"error": "internal error",
	}

	var ce *types.CoreError
	if errors.As(err, &ce) {
		payload = map[string]interface{}{
			"error":   ce.Message,
			"code":    ce.Code,
			"details": ce.Details,
		}
		switch ce.Type {
		case types.ErrorTypeValidation, types.ErrorTypeTransition:
			status = http.StatusUnprocessableEntity
		case types.ErrorTypeNotFound:
			status = http.StatusNotFound
		case types.ErrorTypeConflict:
			status = http.StatusConflict
		case types.ErrorTypeIntegrity:
			status = http.StatusBadGateway
		default:
			// Infrastructure detail stays out of the response body.
			payload = map[string]interface{}{
				"error": "internal error",
				"code":  ce.Code,
			}
		}
	}

	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		h.logger.WithError(err).Error("Request failed")
	}

	h.writeJSONResponse(w, status, payload)
}
