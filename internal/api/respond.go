package api

import (
	"encoding/json"
	"errors"
	"net/http"

	redisclient "github.com/saludplena/therapy-scheduling/internal/redis"
	"github.com/saludplena/therapy-scheduling/internal/scheduling"
)

var (
	errBadBody   = errors.New("could not parse JSON request body")
	errBadSlotID = errors.New("new_slot_id must be a valid UUID")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps a scheduling error onto an HTTP status by its
// kind: validation 400, not-found 404, conflict and state 409.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadBody):
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	case errors.Is(err, errBadSlotID):
		writeError(w, http.StatusBadRequest, "invalid_slot_id", err.Error())
		return
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
		return
	}

	switch scheduling.KindOf(err) {
	case scheduling.KindValidation:
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case scheduling.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case scheduling.KindConflict:
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case scheduling.KindState:
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
