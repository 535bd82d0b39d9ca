package tunnel

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenHeader carries the pre-shared token that authorizes a tunnel.
const TokenHeader = "X-Microterm-Token"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeFunc serves one tunneled connection and returns when it closes.
type ServeFunc func(conn io.ReadWriteCloser)

// Handler upgrades requests bearing token and hands the connection to serve.
// An empty token disables the endpoint.
func Handler(token string, serve ServeFunc, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			http.Error(w, "tunnel disabled", http.StatusNotFound)
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(TokenHeader)), []byte(token)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("tunnel upgrade failed", zap.Error(err))
			return
		}

		log.Info("tunnel connected", zap.String("remote", r.RemoteAddr))
		serve(NewWSConn(wsConn))
		log.Info("tunnel disconnected", zap.String("remote", r.RemoteAddr))
	}
}

// Dial opens a tunnel to url with the given token.
func Dial(ctx context.Context, url, token string) (io.ReadWriteCloser, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := http.Header{}
	header.Set(TokenHeader, token)

	wsConn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial tunnel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial tunnel: %w", err)
	}
	return NewWSConn(wsConn), nil
}
