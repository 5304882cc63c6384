//go:build !windows

package console

import (
	"fmt"
	"os"
	"syscall"
)

// restartProcess replaces the running process image with a fresh copy of the
// same binary, arguments and environment. On success it never returns.
func restartProcess() error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	return syscall.Exec(path, os.Args, os.Environ())
}
