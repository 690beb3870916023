package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gearflow/auth"
	"gearflow/booking"
	"gearflow/checklist"
	"gearflow/dispute"
	"gearflow/listing"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message, Code: code})
}

// writeError maps a domain sentinel onto a status and stable error code.
// Unknown errors are logged and reported as 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, booking.ErrListingNotFound),
		errors.Is(err, listing.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, booking.ErrStaleState):
		writeErrorCode(w, http.StatusConflict, "STALE_STATE", err.Error())
	case errors.Is(err, checklist.ErrAlreadyExists),
		errors.Is(err, dispute.ErrAlreadyOpen),
		errors.Is(err, auth.ErrDuplicateEmail):
		writeErrorCode(w, http.StatusConflict, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, dispute.ErrAlreadyResolved):
		writeErrorCode(w, http.StatusConflict, "ALREADY_RESOLVED", err.Error())
	case errors.Is(err, checklist.ErrPickupRequired):
		writeErrorCode(w, http.StatusPreconditionFailed, "PICKUP_REQUIRED", err.Error())
	case errors.Is(err, booking.ErrDepositNotCollected):
		writeErrorCode(w, http.StatusPreconditionFailed, "DEPOSIT_NOT_COLLECTED", err.Error())
	case errors.Is(err, booking.ErrInvalidDateRange):
		writeErrorCode(w, http.StatusUnprocessableEntity, "INVALID_DATE_RANGE", err.Error())
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, checklist.ErrInvalidAssessment),
		errors.Is(err, dispute.ErrRefundAmountRequired):
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	default:
		log.Printf("httpapi: internal error: %v", err)
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_JSON", "malformed request body")
		return false
	}
	return true
}
