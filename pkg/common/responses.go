package common

import (
	"encoding/json"
	"net/http"

	pkgerrors "flowsketch-backend/pkg/errors"
)

// errorBody is the wire shape for all error responses
type errorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RespondJSON writes a JSON response with the given status
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// RespondError maps an error onto the right status and wire shape. AppErrors
// carry their own status; anything else becomes a 500 without leaking detail.
func RespondError(w http.ResponseWriter, err error) {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		RespondJSON(w, status, errorBody{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}
