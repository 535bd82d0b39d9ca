package pty

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// kill force-terminates the shell and the rest of its process group. The
// shell leads its own session and group after setsid. The group is only
// signalled while the shell is unreaped, so its pid cannot have been reused.
func (s *Session) kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	if s.PID > 0 {
		if err := unix.Kill(-s.PID, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
	}
	return nil
}
