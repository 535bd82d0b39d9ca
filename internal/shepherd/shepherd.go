package shepherd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/yamux"
	"github.com/peterje/microterm/internal/events"
	"github.com/peterje/microterm/internal/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Server answers the shepherd protocol for a SessionManager. Each
// connection carries a yamux session; every stream is either a control
// stream (requests and responses) or, after a subscribe, an event stream.
type Server struct {
	mgr    pty.SessionManager
	events events.Source
	log    *zap.Logger

	mu       sync.Mutex
	sessions map[*yamux.Session]struct{}
}

// NewServer returns a Server over mgr that forwards events from src.
func NewServer(mgr pty.SessionManager, src events.Source, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		mgr:      mgr,
		events:   src,
		log:      log,
		sessions: make(map[*yamux.Session]struct{}),
	}
}

// Serve accepts connections until l is closed.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.ServeConn(conn)
	}
}

// ServeConn serves one client connection and returns when it closes.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	session, err := yamux.Server(conn, muxConfig(s.log))
	if err != nil {
		s.log.Warn("yamux server", zap.Error(err))
		conn.Close()
		return
	}
	s.mu.Lock()
	s.sessions[session] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, session)
		s.mu.Unlock()
		session.Close()
	}()

	s.log.Debug("client connected")
	for {
		stream, err := session.Accept()
		if err != nil {
			s.log.Debug("client disconnected", zap.Error(err))
			return
		}
		go s.handleStream(stream)
	}
}

// CloseConnections drops every connected client.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for session := range s.sessions {
		session.Close()
	}
}

func (s *Server) handleStream(stream net.Conn) {
	defer stream.Close()
	cw := &connWriter{conn: stream}

	reader := bufio.NewReader(stream)
	for {
		frameType, payload, err := readFrame(reader)
		if err != nil {
			return // stream closed
		}
		if frameType != frameControl {
			s.log.Warn("unexpected frame type", zap.Uint8("type", frameType))
			continue
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.log.Warn("bad control message", zap.Error(err))
			continue
		}

		if req.Command == cmdSubscribe {
			s.streamEvents(cw, reader, req)
			return
		}
		s.handleControl(cw, req)
	}
}

func (s *Server) handleControl(cw *connWriter, req Request) {
	switch req.Command {
	case cmdPing:
		cw.send(Response{ID: req.ID, Event: evtPong})

	case cmdCreate:
		id, err := s.mgr.Create(req.Cols, req.Rows)
		if err != nil {
			cw.send(errorResponse(req.ID, err))
			return
		}
		resp := Response{ID: req.ID, Event: evtCreated, SessionID: id}
		for _, info := range s.mgr.List() {
			if info.ID == id {
				resp.PID = info.PID
				break
			}
		}
		cw.send(resp)

	case cmdWrite:
		s.reply(cw, req.ID, s.mgr.Write(req.SessionID, req.Data))

	case cmdResize:
		s.reply(cw, req.ID, s.mgr.Resize(req.SessionID, req.Cols, req.Rows))

	case cmdCwd:
		cwd, ok, err := s.mgr.Cwd(req.SessionID)
		if err != nil {
			cw.send(errorResponse(req.ID, err))
			return
		}
		cw.send(Response{ID: req.ID, Event: evtCwd, SessionID: req.SessionID, Cwd: cwd, CwdOK: ok})

	case cmdList:
		cw.send(Response{ID: req.ID, Event: evtList, Sessions: s.mgr.List()})

	// Close waits for the session's reader; keep the stream responsive.
	case cmdClose:
		go s.reply(cw, req.ID, s.mgr.Close(req.SessionID))

	case cmdCloseAll:
		go func() {
			s.mgr.CloseAll()
			cw.send(Response{ID: req.ID, Event: evtOK})
		}()

	default:
		cw.send(Response{ID: req.ID, Event: evtError, Code: codeBadRequest,
			Error: fmt.Sprintf("unknown command %q", req.Command)})
	}
}

func (s *Server) reply(cw *connWriter, id string, err error) {
	if err != nil {
		cw.send(errorResponse(id, err))
		return
	}
	cw.send(Response{ID: id, Event: evtOK})
}

// streamEvents turns the stream into a one-way event feed until either side
// closes it.
func (s *Server) streamEvents(cw *connWriter, reader io.Reader, req Request) {
	ch, unsub := s.events.Subscribe()
	defer unsub()

	if err := cw.send(Response{ID: req.ID, Event: evtSubscribed}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = io.Copy(io.Discard, reader)
	}()

	for {
		select {
		case <-gone:
			return
		case ev := <-ch:
			var err error
			if ev.IsExit() {
				err = cw.send(Response{Event: evtExited, SessionID: ev.SessionID, ExitCode: ev.ExitCode})
			} else {
				err = cw.writeOutput(ev.SessionID, ev.Data)
			}
			if err != nil {
				s.log.Debug("event stream closed", zap.Error(err))
				return
			}
		}
	}
}

// connWriter serializes frames written to one stream.
type connWriter struct {
	conn net.Conn
	mu   sync.Mutex
}

func (cw *connWriter) send(msg Response) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return writeControl(cw.conn, msg)
}

func (cw *connWriter) writeOutput(sessionID, text string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return writeOutputFrame(cw.conn, sessionID, text)
}

func muxConfig(log *zap.Logger) *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = nil
	cfg.Logger = zap.NewStdLog(log.Named("yamux"))
	return cfg
}

// Options configures the shepherd daemon.
type Options struct {
	SocketPath string
	PIDPath    string
	PTY        pty.Config
	Logger     *zap.Logger
}

// Run starts the shepherd daemon: it owns a Manager and serves it on a
// Unix socket until ctx is done, then closes every session.
func Run(ctx context.Context, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(opts.SocketPath), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := cleanStaleSocket(opts.SocketPath, opts.PIDPath, log); err != nil {
		return fmt.Errorf("clean stale socket: %w", err)
	}

	if err := os.WriteFile(opts.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(opts.PIDPath)

	listener, err := net.Listen("unix", opts.SocketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(opts.SocketPath)

	bus := events.NewBus()
	ptyCfg := opts.PTY
	ptyCfg.Logger = log.Named("pty")
	mgr := pty.NewManager(bus, ptyCfg)
	srv := NewServer(mgr, bus, log)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		listener.Close()
	}()

	log.Info("listening", zap.String("socket", opts.SocketPath), zap.Int("pid", os.Getpid()))
	err = srv.Serve(listener)

	mgr.CloseAll()
	srv.CloseConnections()
	return err
}

// cleanStaleSocket removes a stale socket file if no shepherd is running.
func cleanStaleSocket(socketPath, pidPath string, log *zap.Logger) error {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil
	}

	conn, err := net.Dial("unix", socketPath)
	if err == nil {
		conn.Close()
		return errors.New("shepherd already running (socket active)")
	}

	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil && pid > 0 {
			if err := unix.Kill(pid, 0); err == nil {
				return fmt.Errorf("shepherd already running (pid %d)", pid)
			}
		}
	}

	log.Info("removing stale socket", zap.String("socket", socketPath))
	os.Remove(socketPath)
	os.Remove(pidPath)
	return nil
}
