package tunnel

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(conn io.ReadWriteCloser) {
	defer conn.Close()
	_, _ = io.Copy(conn, conn)
}

func TestHandlerRejectsWithoutToken(t *testing.T) {
	srv := httptest.NewServer(Handler("", echo, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerRejectsWrongToken(t *testing.T) {
	srv := httptest.NewServer(Handler("secret", echo, nil))
	defer srv.Close()

	_, err := Dial(t.Context(), wsURL(srv), "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDialRoundTrip(t *testing.T) {
	srv := httptest.NewServer(Handler("secret", echo, nil))
	defer srv.Close()

	conn, err := Dial(t.Context(), wsURL(srv), "secret")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello tunnel"))
	require.NoError(t, err)

	// Small reads drain one message across several calls.
	var got []byte
	buf := make([]byte, 4)
	for len(got) < len("hello tunnel") {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "hello tunnel", string(got))
}

func TestWSConnSkipsTextMessages(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte("ignored"))
		_ = c.WriteMessage(websocket.BinaryMessage, []byte("payload"))
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	raw, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	conn := NewWSConn(raw)
	defer conn.Close()

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))
}
