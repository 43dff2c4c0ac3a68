//go:build windows

package daemon

import (
	"os"
	"syscall"
)

// alive reports whether pid still exists. FindProcess opens a handle on
// Windows, so it fails for exited processes.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// sendSignal only reliably supports kill on Windows.
func sendSignal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
