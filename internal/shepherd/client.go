package shepherd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/peterje/microterm/internal/events"
	"github.com/peterje/microterm/internal/pty"
	"github.com/peterje/microterm/internal/tunnel"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by requests made after the connection to the
// shepherd was lost or closed.
var ErrClientClosed = errors.New("shepherd client closed")

// Client connects to a shepherd and implements pty.SessionManager. Session
// events are republished on the Bus returned by Events.
type Client struct {
	session *yamux.Session
	control net.Conn
	connMu  sync.Mutex // serialize writes on the control stream

	pendingMu sync.Mutex
	pending   map[string]chan Response

	bus *events.Bus
	log *zap.Logger

	reqCounter atomic.Uint64
	closeOnce  sync.Once
	closed     chan struct{}
}

// Dial connects to the shepherd listening on socketPath.
func Dial(socketPath string, log *zap.Logger) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to shepherd: %w", err)
	}
	return NewClient(conn, log)
}

// NewClient runs the client side of the protocol over conn, which it owns.
func NewClient(conn io.ReadWriteCloser, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	session, err := yamux.Client(conn, muxConfig(log))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("yamux client: %w", err)
	}

	c := &Client{
		session: session,
		pending: make(map[string]chan Response),
		bus:     events.NewBus(),
		log:     log,
		closed:  make(chan struct{}),
	}

	if c.control, err = session.Open(); err != nil {
		session.Close()
		return nil, fmt.Errorf("open control stream: %w", err)
	}
	eventStream, err := c.subscribe()
	if err != nil {
		session.Close()
		return nil, err
	}

	go c.readLoop()
	go c.eventLoop(eventStream)
	go func() {
		<-session.CloseChan()
		c.shutdown()
	}()
	return c, nil
}

// subscribe opens the event stream and waits for the acknowledgement so no
// event published after NewClient returns is missed.
func (c *Client) subscribe() (*bufio.Reader, error) {
	stream, err := c.session.Open()
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if err := writeControl(stream, Request{ID: c.nextReqID(), Command: cmdSubscribe}); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	reader := bufio.NewReader(stream)
	frameType, payload, err := readFrame(reader)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	var resp Response
	if frameType != frameControl || json.Unmarshal(payload, &resp) != nil || resp.Event != evtSubscribed {
		return nil, errors.New("subscribe: unexpected response")
	}
	return reader, nil
}

// Events returns the bus carrying the shepherd's session events.
func (c *Client) Events() *events.Bus {
	return c.bus
}

// Done is closed once the connection to the shepherd is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Disconnect closes the connection to the shepherd. Sessions keep running.
func (c *Client) Disconnect() error {
	c.shutdown()
	return c.session.Close()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Ping checks if the shepherd is responsive.
func (c *Client) Ping() error {
	resp, err := c.sendRequest(Request{Command: cmdPing})
	if err != nil {
		return err
	}
	if resp.Event != evtPong {
		return fmt.Errorf("unexpected response: %s", resp.Event)
	}
	return nil
}

// Create implements pty.SessionManager.
func (c *Client) Create(cols, rows int) (string, error) {
	if err := pty.ValidateSize(cols, rows); err != nil {
		return "", err
	}
	resp, err := c.sendRequest(Request{Command: cmdCreate, Cols: cols, Rows: rows})
	if err != nil {
		return "", &pty.SpawnError{Op: "shepherd", Err: err}
	}
	if err := responseError(resp, ""); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// Write implements pty.SessionManager.
func (c *Client) Write(id string, data []byte) error {
	return c.call(Request{Command: cmdWrite, SessionID: id, Data: data})
}

// Resize implements pty.SessionManager. The size is validated before the
// request leaves the process.
func (c *Client) Resize(id string, cols, rows int) error {
	if err := pty.ValidateSize(cols, rows); err != nil {
		return err
	}
	return c.call(Request{Command: cmdResize, SessionID: id, Cols: cols, Rows: rows})
}

// Cwd implements pty.SessionManager.
func (c *Client) Cwd(id string) (string, bool, error) {
	resp, err := c.sendRequest(Request{Command: cmdCwd, SessionID: id})
	if err != nil {
		return "", false, err
	}
	if err := responseError(resp, id); err != nil {
		return "", false, err
	}
	return resp.Cwd, resp.CwdOK, nil
}

// Close implements pty.SessionManager. It returns once the shepherd has
// joined the session's reader.
func (c *Client) Close(id string) error {
	return c.call(Request{Command: cmdClose, SessionID: id})
}

// List implements pty.SessionManager.
func (c *Client) List() []pty.Info {
	resp, err := c.sendRequest(Request{Command: cmdList})
	if err != nil {
		c.log.Warn("list sessions", zap.Error(err))
		return nil
	}
	return resp.Sessions
}

// CloseAll implements pty.SessionManager.
func (c *Client) CloseAll() {
	if _, err := c.sendRequest(Request{Command: cmdCloseAll}); err != nil {
		c.log.Warn("close all sessions", zap.Error(err))
	}
}

func (c *Client) call(req Request) error {
	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}
	return responseError(resp, req.SessionID)
}

func (c *Client) nextReqID() string {
	return fmt.Sprintf("r%d", c.reqCounter.Add(1))
}

func (c *Client) sendRequest(req Request) (Response, error) {
	req.ID = c.nextReqID()

	ch := make(chan Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	err := writeControl(c.control, req)
	c.connMu.Unlock()
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-c.closed:
		return Response{}, ErrClientClosed
	}
}

func (c *Client) readLoop() {
	defer c.shutdown()
	reader := bufio.NewReader(c.control)
	for {
		frameType, payload, err := readFrame(reader)
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Warn("control stream read failed", zap.Error(err))
			}
			return
		}
		if frameType != frameControl {
			continue
		}

		var resp Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			c.log.Warn("bad control message", zap.Error(err))
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) eventLoop(reader *bufio.Reader) {
	defer c.shutdown()
	for {
		frameType, payload, err := readFrame(reader)
		if err != nil {
			return
		}

		switch frameType {
		case frameOutput:
			id, text, err := parseOutputPayload(payload)
			if err != nil {
				c.log.Warn("bad output frame", zap.Error(err))
				continue
			}
			c.bus.EmitOutput(pty.OutputEvent{SessionID: id, Data: text})

		case frameControl:
			var resp Response
			if err := json.Unmarshal(payload, &resp); err != nil || resp.Event != evtExited {
				continue
			}
			c.bus.EmitExit(pty.ExitEvent{SessionID: resp.SessionID, ExitCode: resp.ExitCode})
		}
	}
}

var _ pty.SessionManager = (*Client)(nil)

// DialTunnel connects to a shepherd protocol endpoint exposed over a
// websocket by another host's HTTP server.
func DialTunnel(ctx context.Context, url, token string, log *zap.Logger) (*Client, error) {
	conn, err := tunnel.Dial(ctx, url, token)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, log)
}
