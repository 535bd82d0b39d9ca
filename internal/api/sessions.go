package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/peterje/microterm/internal/journal"
	"github.com/peterje/microterm/internal/models"
	"github.com/peterje/microterm/internal/pty"
)

const maxInputBytes = 1 << 20

type SessionsHandler struct {
	manager      pty.SessionManager
	store        *journal.Store
	historyLimit int
}

func NewSessionsHandler(manager pty.SessionManager, store *journal.Store, historyLimit int) *SessionsHandler {
	return &SessionsHandler{manager: manager, store: store, historyLimit: historyLimit}
}

func (h *SessionsHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	sessions := h.manager.List()
	if sessions == nil {
		sessions = []pty.Info{}
	}
	WriteJSON(w, http.StatusOK, sessions)
}

func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := h.manager.Create(body.Cols, body.Rows)
	if err != nil {
		WriteSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, models.CreateSessionResponse{SessionID: id})
}

func (h *SessionsHandler) HandleInput(w http.ResponseWriter, r *http.Request) {
	var body models.InputRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInputBytes)).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.manager.Write(r.PathValue("id"), []byte(body.Data)); err != nil {
		WriteSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) HandleResize(w http.ResponseWriter, r *http.Request) {
	var body models.ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.manager.Resize(r.PathValue("id"), body.Cols, body.Rows); err != nil {
		WriteSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) HandleCwd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cwd, ok, err := h.manager.Cwd(id)
	if err != nil {
		WriteSessionError(w, err)
		return
	}

	resp := models.CwdResponse{SessionID: id}
	if ok {
		resp.Cwd = &cwd
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleDelete closes the session. Unknown ids succeed too.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(r.PathValue("id")); err != nil {
		WriteSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteJSON(w, http.StatusOK, []models.SessionRecord{})
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 1000)
	}

	records, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, records)
}
