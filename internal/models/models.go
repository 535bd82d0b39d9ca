package models

import "time"

// Session statuses recorded in the journal.
const (
	StatusRunning   = "running"
	StatusExited    = "exited"
	StatusClosed    = "closed"
	StatusAbandoned = "abandoned"
)

// SessionRecord is a journal row: one shell session, live or finished.
type SessionRecord struct {
	ID        string     `json:"id"`
	Shell     string     `json:"shell"`
	PID       *int       `json:"pid"`
	Cols      int        `json:"cols"`
	Rows      int        `json:"rows"`
	Status    string     `json:"status"`
	ExitCode  *int       `json:"exit_code"`
	CreatedAt time.Time  `json:"created_at"`
	ResizedAt *time.Time `json:"resized_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type ShellStatus struct {
	Path      string `json:"path"`
	Installed bool   `json:"installed"`
}

type HealthResponse struct {
	Status   string      `json:"status"`
	Shell    ShellStatus `json:"shell"`
	PTY      bool        `json:"pty"`
	Shepherd bool        `json:"shepherd"`
	Sessions int         `json:"sessions"`
}

type CreateSessionRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type ResizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type InputRequest struct {
	Data string `json:"data"`
}

type CwdResponse struct {
	SessionID string  `json:"sessionId"`
	Cwd       *string `json:"cwd"`
}
