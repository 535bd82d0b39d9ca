package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterje/microterm/internal/events"
	"github.com/peterje/microterm/internal/metrics"
	"github.com/peterje/microterm/internal/pty"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
)

// Command is a request from the browser. Cols and Rows apply to create and
// resize; Data is the text to write.
type Command struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Response answers one Command.
type Response struct {
	Type      string     `json:"type"`
	RequestID string     `json:"requestId,omitempty"`
	OK        bool       `json:"ok"`
	Error     string     `json:"error,omitempty"`
	Code      string     `json:"code,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Cwd       *string    `json:"cwd,omitempty"`
	Sessions  []pty.Info `json:"sessions,omitempty"`
}

// Handler bridges one websocket per browser to the session manager: every
// session event is pushed to every client, and commands are answered in
// the order they arrive. Disconnecting leaves sessions running.
type Handler struct {
	manager  pty.SessionManager
	events   events.Source
	metrics  *metrics.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(manager pty.SessionManager, src events.Source, allowedOrigins []string, m *metrics.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{manager: manager, events: src, metrics: m, log: log}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.ClientConnected()
	defer h.metrics.ClientDisconnected()

	log := h.log.With(zap.String("remote", r.RemoteAddr))
	log.Info("client connected")

	c := &client{conn: conn}
	// Subscribe before reading commands so a create's output is never missed.
	eventsCh, unsub := h.events.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	done := make(chan struct{})

	// Events and keepalive pings -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case ev := <-eventsCh:
				if err := c.send(ev); err != nil {
					log.Debug("write event failed", zap.Error(err))
					conn.Close()
					return
				}
			case <-ticker.C:
				if err := c.ping(); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	// WebSocket -> manager
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read from client failed", zap.Error(err))
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			c.send(Response{Type: "response", Error: "invalid JSON", Code: "bad_request"})
			continue
		}
		if cmd.Type == "close" {
			// Close joins the session's reader; keep reading meanwhile.
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.send(h.handle(cmd))
			}()
			continue
		}
		if err := c.send(h.handle(cmd)); err != nil {
			break
		}
	}

	close(done)
	unsub()
	wg.Wait()
	log.Info("client disconnected")
}

func (h *Handler) handle(cmd Command) Response {
	resp := Response{Type: "response", RequestID: cmd.RequestID, SessionID: cmd.SessionID}

	var err error
	switch cmd.Type {
	case "ping":
		resp.Type = "pong"
	case "create":
		resp.SessionID, err = h.manager.Create(cmd.Cols, cmd.Rows)
	case "write":
		err = h.manager.Write(cmd.SessionID, []byte(cmd.Data))
	case "resize":
		err = h.manager.Resize(cmd.SessionID, cmd.Cols, cmd.Rows)
	case "close":
		err = h.manager.Close(cmd.SessionID)
	case "cwd":
		var cwd string
		var ok bool
		cwd, ok, err = h.manager.Cwd(cmd.SessionID)
		if err == nil && ok {
			resp.Cwd = &cwd
		}
	case "list":
		resp.Sessions = h.manager.List()
	default:
		resp.Error = "unknown command type"
		resp.Code = "bad_request"
		return resp
	}

	if err != nil {
		resp.Error = err.Error()
		resp.Code = pty.ErrorKind(err)
		return resp
	}
	resp.OK = true
	return resp
}
