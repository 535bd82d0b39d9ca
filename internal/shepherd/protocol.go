package shepherd

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/peterje/microterm/internal/pty"
)

// Frame types for the binary protocol.
const (
	frameControl byte = 0x01 // JSON control message
	frameOutput  byte = 0x02 // decoded PTY output: sessionID + text
)

const maxFrameSize = 10 * 1024 * 1024

// Command types for JSON control messages.
const (
	cmdPing      = "ping"
	cmdCreate    = "create"
	cmdWrite     = "write"
	cmdResize    = "resize"
	cmdCwd       = "cwd"
	cmdClose     = "close"
	cmdList      = "list"
	cmdCloseAll  = "close_all"
	cmdSubscribe = "subscribe"
)

// Event types sent from shepherd to client.
const (
	evtOK         = "ok"
	evtError      = "error"
	evtPong       = "pong"
	evtCreated    = "created"
	evtCwd        = "cwd"
	evtList       = "list"
	evtSubscribed = "subscribed"
	evtExited     = "exited" // session ended, sent on event streams only
)

// Error codes carried by evtError responses, besides the pty error kinds.
const codeBadRequest = "bad_request"

// Request is a JSON control message from client to shepherd.
type Request struct {
	ID      string `json:"id"`      // request correlation ID
	Command string `json:"command"` // cmdCreate, cmdWrite, etc.

	SessionID string `json:"session_id,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

// Response is a JSON control message from shepherd to client.
type Response struct {
	ID    string `json:"id,omitempty"` // empty on exit notifications
	Event string `json:"event"`

	SessionID string     `json:"session_id,omitempty"`
	PID       int        `json:"pid,omitempty"`
	Cwd       string     `json:"cwd,omitempty"`
	CwdOK     bool       `json:"cwd_ok,omitempty"`
	Sessions  []pty.Info `json:"sessions,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`

	Error      string               `json:"error,omitempty"`
	Code       string               `json:"code,omitempty"`
	Validation *pty.ValidationError `json:"validation,omitempty"`
}

// Wire format:
//   [4 bytes big-endian length][1 byte frame type][payload]
// For frameControl: payload is JSON-encoded Request or Response
// For frameOutput: payload is [session_id_len(1 byte)][session_id][utf-8 text]

func writeFrame(w io.Writer, frameType byte, payload []byte) error {
	buf := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(1+len(payload)))
	buf[4] = frameType
	copy(buf[5:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func writeControl(w io.Writer, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return writeFrame(w, frameControl, data)
}

func writeOutputFrame(w io.Writer, sessionID string, text string) error {
	if len(sessionID) > 255 {
		return fmt.Errorf("session id too long: %d bytes", len(sessionID))
	}
	payload := make([]byte, 1+len(sessionID)+len(text))
	payload[0] = byte(len(sessionID))
	copy(payload[1:], sessionID)
	copy(payload[1+len(sessionID):], text)
	return writeFrame(w, frameOutput, payload)
}

func readFrame(r io.Reader) (byte, []byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return 0, nil, errors.New("empty frame")
	}
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("frame too large: %d", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	return buf[0], buf[1:], nil
}

func parseOutputPayload(payload []byte) (sessionID string, text string, err error) {
	if len(payload) < 1 {
		return "", "", errors.New("output payload too short")
	}
	idLen := int(payload[0])
	if len(payload) < 1+idLen {
		return "", "", errors.New("output payload too short for session ID")
	}
	return string(payload[1 : 1+idLen]), string(payload[1+idLen:]), nil
}

// errorResponse maps a SessionManager error onto the wire.
func errorResponse(id string, err error) Response {
	resp := Response{ID: id, Event: evtError, Error: err.Error(), Code: pty.ErrorKind(err)}
	var verr *pty.ValidationError
	if errors.As(err, &verr) {
		resp.Validation = verr
	}
	return resp
}

// responseError rebuilds the typed error from an evtError response so
// callers can use errors.Is and errors.As across the socket.
func responseError(resp Response, sessionID string) error {
	if resp.Event != evtError {
		return nil
	}
	switch resp.Code {
	case pty.KindValidation:
		if resp.Validation != nil {
			return resp.Validation
		}
	case pty.KindNotFound:
		return fmt.Errorf("%w: %s", pty.ErrSessionNotFound, sessionID)
	case pty.KindSpawn:
		return &pty.SpawnError{Op: "shepherd", Err: errors.New(resp.Error)}
	}
	return fmt.Errorf("shepherd: %s", resp.Error)
}
