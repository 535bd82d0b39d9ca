package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/peterje/microterm/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultReadBufferSize = 8 * 1024

// Config controls how sessions are spawned. Zero fields take defaults.
type Config struct {
	ShellFallbacks []string
	ExtraPath      []string
	Locale         string
	ReadBufferSize int

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Cwd, Environ and LookupEnv default to the real process and OS.
	Cwd       CwdFunc
	Environ   func() []string
	LookupEnv LookupFunc
}

// DefaultConfig returns the spawn defaults.
func DefaultConfig() Config {
	return Config{
		ShellFallbacks: DefaultShellFallbacks,
		Locale:         DefaultLocale,
		ReadBufferSize: defaultReadBufferSize,
	}
}

// Manager creates, drives and tears down PTY sessions. Lookups take the
// registry lock only for the map operation; I/O takes the session lock only
// for the duration of that operation, so a stalled session never blocks
// another.
type Manager struct {
	registry *Registry
	emitter  Emitter
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewManager returns a Manager that publishes session events to emitter.
func NewManager(emitter Emitter, cfg Config) *Manager {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if len(cfg.ShellFallbacks) == 0 {
		cfg.ShellFallbacks = DefaultShellFallbacks
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.Cwd == nil {
		cfg.Cwd = ProcessCwd
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		registry: NewRegistry(),
		emitter:  emitter,
		cfg:      cfg,
		log:      log,
		metrics:  cfg.Metrics,
	}
}

// Create spawns the user's shell on a new pseudoterminal of the given size
// and returns the session identifier. The session is registered only after
// its reader is running.
func (m *Manager) Create(cols, rows int) (string, error) {
	if err := ValidateSize(cols, rows); err != nil {
		return "", err
	}

	shell := ResolveShell(m.cfg.LookupEnv, m.cfg.ShellFallbacks)
	home := ResolveHome(m.cfg.LookupEnv)

	cmd := exec.Command(shell)
	cmd.Dir = home
	cmd.Env = BuildEnv(m.cfg.Environ(), m.cfg.LookupEnv, shell, home, m.cfg.Locale, m.cfg.ExtraPath)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		m.metrics.SpawnFailed()
		return "", &SpawnError{Op: shell, Err: err}
	}

	s := newSession(uuid.NewString(), cmd, ptmx, shell, cols, rows)

	attached := make(chan struct{})
	go m.readLoop(s, attached)
	<-attached

	if err := m.registry.Insert(s); err != nil {
		s.shutdown.Store(true)
		_ = s.kill()
		_ = s.closePTY()
		close(s.published)
		<-s.done
		m.metrics.SpawnFailed()
		return "", &SpawnError{Op: "register", Err: err}
	}
	s.listed = true
	close(s.published)
	m.metrics.SessionStarted()

	m.log.Info("session created",
		zap.String("session_id", s.ID),
		zap.Int("pid", s.PID),
		zap.String("shell", shell),
		zap.Int("cols", cols),
		zap.Int("rows", rows))
	return s.ID, nil
}

// Write sends data to the session's shell.
func (m *Manager) Write(id string, data []byte) error {
	s, ok := m.registry.Get(id)
	if !ok {
		return notFound(id)
	}
	if err := s.write(data); err != nil {
		return fmt.Errorf("write to session %s: %w", id, err)
	}
	return nil
}

// Resize changes the session's terminal geometry. The size is validated
// before the session is looked up.
func (m *Manager) Resize(id string, cols, rows int) error {
	if err := ValidateSize(cols, rows); err != nil {
		return err
	}
	s, ok := m.registry.Get(id)
	if !ok {
		return notFound(id)
	}
	if err := s.resize(cols, rows); err != nil {
		return fmt.Errorf("resize session %s: %w", id, err)
	}
	return nil
}

// Cwd returns the shell's current working directory. ok is false when the
// platform lookup is unsupported or fails.
func (m *Manager) Cwd(id string) (string, bool, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return "", false, notFound(id)
	}
	if s.PID <= 0 {
		return "", false, nil
	}
	cwd, ok := m.cfg.Cwd(s.PID)
	return cwd, ok, nil
}

// Close terminates the session and returns once its reader has exited.
// Closing an unknown identifier is a no-op.
//
// The wait for the reader is unbounded: a process that survives SIGKILL
// while holding the terminal open keeps Close blocked.
func (m *Manager) Close(id string) error {
	s, ok := m.registry.Remove(id)
	if !ok {
		return nil
	}

	s.shutdown.Store(true)
	if err := s.kill(); err != nil {
		m.log.Warn("kill shell failed", zap.String("session_id", id), zap.Error(err))
	}
	// Releases a read blocked on a pollable master; elsewhere the kill does.
	if err := s.closePTY(); err != nil {
		m.log.Debug("close pty master", zap.String("session_id", id), zap.Error(err))
	}
	<-s.done

	m.log.Info("session closed", zap.String("session_id", id))
	return nil
}

// CloseAll closes every registered session concurrently.
func (m *Manager) CloseAll() {
	var g errgroup.Group
	for _, s := range m.registry.Sessions() {
		id := s.ID
		g.Go(func() error {
			return m.Close(id)
		})
	}
	_ = g.Wait()
}

// List returns the live sessions ordered by start time.
func (m *Manager) List() []Info {
	sessions := m.registry.Sessions()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	return out
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	return m.registry.Len()
}

// readLoop pumps the session's output until EOF, a read error or shutdown,
// then reaps the shell, unregisters the session and emits its exit event.
func (m *Manager) readLoop(s *Session, attached chan<- struct{}) {
	defer close(s.done)
	close(attached)

	log := m.log.With(zap.String("session_id", s.ID))
	buf := make([]byte, m.cfg.ReadBufferSize)
	var dec Decoder

	for !s.shutdown.Load() {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			m.metrics.Output(n)
			text, dropped := dec.Decode(buf[:n])
			if dropped > 0 {
				m.metrics.Malformed(dropped)
				log.Warn("dropped malformed utf-8", zap.Int("bytes", dropped))
			}
			if text != "" {
				m.emitter.EmitOutput(OutputEvent{SessionID: s.ID, Data: text})
			}
		}
		if err != nil {
			switch {
			case s.shutdown.Load():
			case errors.Is(err, io.EOF), errors.Is(err, syscall.EIO):
				// Linux reports EIO once the slave side is gone.
				log.Debug("pty reached end of output", zap.Error(err))
			default:
				log.Warn("pty read failed", zap.Error(err))
			}
			break
		}
		if n == 0 {
			break
		}
	}

	if pending := dec.Reset(); pending > 0 {
		m.metrics.Malformed(pending)
		log.Warn("discarded incomplete utf-8 at end of output", zap.Int("bytes", pending))
	}

	var code *int
	reason := metrics.ReasonClosed
	if !s.shutdown.Load() {
		reason = metrics.ReasonNatural
		var err error
		if code, err = s.wait(); err != nil {
			log.Warn("collect exit status", zap.Error(err))
		}
	} else {
		// Close killed the shell; reap it without holding up the join.
		go func() { _, _ = s.wait() }()
	}
	if err := s.closePTY(); err != nil {
		log.Debug("close pty master", zap.Error(err))
	}

	<-s.published
	m.registry.RemoveSession(s.ID, s)
	if s.listed {
		m.metrics.SessionEnded(reason)
	}
	m.emitter.EmitExit(ExitEvent{SessionID: s.ID, ExitCode: code})

	log.Info("session exited", zap.String("reason", reason), zap.Any("exit_code", code))
}
