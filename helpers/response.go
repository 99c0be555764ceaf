package helpers

import (
	"encoding/json"
	"errors"
	"net/http"

	"party_server/models"
)

// WriteJSONResponse writes payload as a JSON response with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// WriteErrorResponse maps a service error onto an HTTP status and writes
// its classification as the body.
func WriteErrorResponse(w http.ResponseWriter, err error) {
	var ae *models.AppError
	if !errors.As(err, &ae) {
		ae = models.StoreError(err)
	}
	WriteJSONResponse(w, statusForKind(ae.Kind), ae)
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrUnauthorized:
		return http.StatusForbidden
	case models.ErrConflict:
		return http.StatusConflict
	case models.ErrInvalidState:
		return http.StatusUnprocessableEntity
	case models.ErrTimeout:
		return http.StatusRequestTimeout
	case models.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
