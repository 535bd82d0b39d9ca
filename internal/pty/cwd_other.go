//go:build !linux && !(darwin && cgo)

package pty

func processCwd(int) (string, bool) {
	return "", false
}
