package preflight

import (
	"os"

	"github.com/peterje/microterm/internal/models"
	"go.uber.org/zap"
)

// PTYDevice is the multiplexer every pseudoterminal is allocated from.
var PTYDevice = "/dev/ptmx"

// CheckAll reports whether the shell sessions will use exists and whether
// pseudoterminals can be allocated. A missing shell only degrades service;
// a missing PTY device makes the server useless.
func CheckAll(shell string, log *zap.Logger) (models.ShellStatus, bool) {
	shellStatus := checkShell(shell)
	ptyOk := checkPTY()

	if shellStatus.Installed {
		log.Info("shell found", zap.String("path", shellStatus.Path))
	} else {
		log.Warn("shell is not executable; sessions will fail to spawn", zap.String("path", shell))
	}
	if ptyOk {
		log.Info("pty device available", zap.String("path", PTYDevice))
	} else {
		log.Error("pty device missing", zap.String("path", PTYDevice))
	}

	return shellStatus, ptyOk
}

func checkShell(path string) models.ShellStatus {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return models.ShellStatus{Path: path, Installed: false}
	}
	return models.ShellStatus{Path: path, Installed: true}
}

func checkPTY() bool {
	_, err := os.Stat(PTYDevice)
	return err == nil
}
