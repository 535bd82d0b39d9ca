package pty

// Event names as seen by the presentation layer.
const (
	EventOutput = "pty-output"
	EventExit   = "pty-exit"
)

// OutputEvent carries decoded shell output. Events for one session arrive in
// the order the shell produced the bytes.
type OutputEvent struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

// ExitEvent is the last event for a session. ExitCode is nil when the session
// was closed explicitly or its exit status could not be collected.
type ExitEvent struct {
	SessionID string `json:"sessionId"`
	ExitCode  *int   `json:"exitCode"`
}

// Emitter receives session events. Implementations may block to apply
// backpressure; they must not call back into the Manager for the same session.
type Emitter interface {
	EmitOutput(OutputEvent)
	EmitExit(ExitEvent)
}

type nopEmitter struct{}

func (nopEmitter) EmitOutput(OutputEvent) {}
func (nopEmitter) EmitExit(ExitEvent)     {}
