package pty

// CwdFunc looks up the working directory of a process. It reports false on
// any failure; the lookup is diagnostic only.
type CwdFunc func(pid int) (string, bool)

// ProcessCwd is the resolver for the current platform.
var ProcessCwd CwdFunc = processCwd
