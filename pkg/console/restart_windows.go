//go:build windows

package console

import (
	"fmt"
	"os"
	"os/exec"
)

// restartProcess spawns a detached copy of the same binary and exits the
// current process. Windows has no exec-style process replacement.
func restartProcess() error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	cmd := exec.Command(path, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning replacement process: %w", err)
	}

	os.Exit(0)
	return nil
}
