//go:build linux

package pty

import "github.com/prometheus/procfs"

// processCwd reads the /proc/<pid>/cwd symlink.
func processCwd(pid int) (string, bool) {
	if pid <= 0 {
		return "", false
	}
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return "", false
	}
	cwd, err := proc.Cwd()
	if err != nil || cwd == "" {
		return "", false
	}
	return cwd, true
}
