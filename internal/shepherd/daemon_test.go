package shepherd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterje/microterm/internal/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunServesRealSessions(t *testing.T) {
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pseudoterminal support")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	// Unix socket paths are length limited; keep this one short.
	dir, err := os.MkdirTemp("", "mt")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	env := map[string]string{"SHELL": "/bin/sh", "HOME": dir, "PATH": "/usr/bin:/bin"}
	ptyCfg := pty.DefaultConfig()
	ptyCfg.ShellFallbacks = []string{"/bin/sh"}
	ptyCfg.Environ = func() []string { return nil }
	ptyCfg.LookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	opts := Options{
		SocketPath: filepath.Join(dir, "s.sock"),
		PIDPath:    filepath.Join(dir, "s.pid"),
		PTY:        ptyCfg,
	}
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- Run(ctx, opts) }()

	var client *Client
	require.Eventually(t, func() bool {
		c, err := Dial(opts.SocketPath, nil)
		if err != nil {
			return false
		}
		client = c
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer client.Disconnect()
	assert.FileExists(t, opts.PIDPath)

	ch, unsub := client.Events().Subscribe()
	defer unsub()

	id, err := client.Create(80, 24)
	require.NoError(t, err)
	require.NoError(t, client.Write(id, []byte("echo via-$((6*7))\n")))

	var out strings.Builder
	deadline := time.After(10 * time.Second)
	for !strings.Contains(out.String(), "via-42") {
		select {
		case ev := <-ch:
			if ev.SessionID == id {
				out.WriteString(ev.Data)
			}
		case <-deadline:
			t.Fatalf("no echo; got %q", out.String())
		}
	}

	require.NoError(t, client.Write(id, []byte("exit 5\n")))
	for {
		ev := <-ch
		if ev.IsExit() {
			assert.Equal(t, id, ev.SessionID)
			require.NotNil(t, ev.ExitCode)
			assert.Equal(t, 5, *ev.ExitCode)
			break
		}
	}
	assert.ErrorIs(t, client.Write(id, []byte("x")), pty.ErrSessionNotFound)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("shepherd did not stop")
	}
	_, err = net.Dial("unix", opts.SocketPath)
	assert.Error(t, err)
	assert.NoFileExists(t, opts.PIDPath)
}
