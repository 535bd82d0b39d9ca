package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/peterje/microterm/internal/pty"
)

type errorBody struct {
	Error string               `json:"error"`
	Code  string               `json:"code,omitempty"`
	Field *pty.ValidationError `json:"validation,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: msg})
}

// WriteSessionError maps a SessionManager error to a status code.
func WriteSessionError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Code: pty.ErrorKind(err)}
	status := http.StatusInternalServerError
	switch body.Code {
	case pty.KindValidation:
		status = http.StatusBadRequest
		var verr *pty.ValidationError
		if errors.As(err, &verr) {
			body.Field = verr
		}
	case pty.KindNotFound:
		status = http.StatusNotFound
	case pty.KindSpawn:
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, body)
}
