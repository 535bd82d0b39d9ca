package pty

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Session is one shell attached to a pseudoterminal. The master file is
// both the exclusive writer and the reader's source; the slave side is
// handed to the child at spawn and closed in this process.
type Session struct {
	ID        string
	PID       int
	Shell     string
	StartedAt time.Time

	// mu guards writes, geometry, the master's lifetime and kills.
	// It is never held across a blocking read.
	mu     sync.Mutex
	ptmx   *os.File
	cmd    *exec.Cmd
	cols   int
	rows   int
	closed bool

	shutdown  atomic.Bool
	listed    bool          // set before published is closed
	published chan struct{} // closed once Create has finished with the registry
	done      chan struct{} // closed when the reader has exited
}

func newSession(id string, cmd *exec.Cmd, ptmx *os.File, shell string, cols, rows int) *Session {
	s := &Session{
		ID:        id,
		Shell:     shell,
		StartedAt: time.Now(),
		ptmx:      ptmx,
		cmd:       cmd,
		cols:      cols,
		rows:      rows,
		published: make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cmd.Process != nil {
		s.PID = cmd.Process.Pid
	}
	return s
}

// Done is closed when the session's reader has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if _, err := s.ptmx.Write(data); err != nil {
		return err
	}
	return nil
}

func (s *Session) resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return err
	}
	s.cols, s.rows = cols, rows
	return nil
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.ID,
		PID:       s.PID,
		Shell:     s.Shell,
		Cols:      s.cols,
		Rows:      s.rows,
		StartedAt: s.StartedAt,
	}
}

// closePTY closes the master. Safe to call more than once.
func (s *Session) closePTY() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ptmx.Close()
}

// wait reaps the child and returns its exit code, or nil if the status
// could not be collected.
func (s *Session) wait() (*int, error) {
	err := s.cmd.Wait()
	if s.cmd.ProcessState == nil {
		return nil, fmt.Errorf("wait for shell: %w", err)
	}
	return exitCode(s.cmd.ProcessState), nil
}

// exitCode maps a process state to the code reported in ExitEvent:
// the exit status for a normal exit, 128+signal for a signal.
func exitCode(state *os.ProcessState) *int {
	code := state.ExitCode()
	if code < 0 {
		code = 1
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = 128 + int(ws.Signal())
		}
	}
	return &code
}
