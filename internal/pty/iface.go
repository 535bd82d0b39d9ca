package pty

import "time"

// Info describes a live session.
type Info struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid,omitempty"`
	Shell     string    `json:"shell"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	StartedAt time.Time `json:"started_at"`
}

// SessionManager is the operation surface shared by the in-process Manager
// and the shepherd client.
type SessionManager interface {
	Create(cols, rows int) (string, error)
	Write(id string, data []byte) error
	Resize(id string, cols, rows int) error
	Cwd(id string) (string, bool, error)
	Close(id string) error
	List() []Info
	CloseAll()
}
