//go:build linux

package pty

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessCwdSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self/cwd"); err != nil {
		t.Skip("procfs not mounted")
	}
	want, err := os.Getwd()
	require.NoError(t, err)

	got, ok := processCwd(os.Getpid())
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestProcessCwdInvalidPID(t *testing.T) {
	_, ok := processCwd(0)
	assert.False(t, ok)
	_, ok = processCwd(-1)
	assert.False(t, ok)
}

func TestManagerCwdFollowsShell(t *testing.T) {
	if _, err := os.Stat("/proc/self/cwd"); err != nil {
		t.Skip("procfs not mounted")
	}
	rec := newRecorder()
	m := newTestManager(t, rec)

	id, err := m.Create(80, 24)
	require.NoError(t, err)

	home, _ := m.cfg.LookupEnv("HOME")
	want, err := filepath.EvalSymlinks(home)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		cwd, ok, err := m.Cwd(id)
		return err == nil && ok && cwd == want
	}, eventTimeout, 20*time.Millisecond)

	require.NoError(t, m.Write(id, []byte("cd /\n")))
	assert.Eventually(t, func() bool {
		cwd, ok, err := m.Cwd(id)
		return err == nil && ok && cwd == "/"
	}, eventTimeout, 20*time.Millisecond)
}
