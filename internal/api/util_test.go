package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peterje/microterm/internal/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSessionError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", pty.ValidateSize(80, 0), http.StatusBadRequest, pty.KindValidation},
		{"not found", fmt.Errorf("%w: x", pty.ErrSessionNotFound), http.StatusNotFound, pty.KindNotFound},
		{"spawn", &pty.SpawnError{Op: "sh", Err: errors.New("boom")}, http.StatusServiceUnavailable, pty.KindSpawn},
		{"io", errors.New("eio"), http.StatusInternalServerError, pty.KindIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteSessionError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestWriteSessionErrorIncludesField(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSessionError(rec, pty.ValidateSize(600, 24))

	var body struct {
		Validation pty.ValidationError `json:"validation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cols", body.Validation.Field)
	assert.Equal(t, 600, body.Validation.Value)
	assert.Equal(t, pty.MaxCols, body.Validation.Max)
}
