// Package app wires the docchat components together and runs the server.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned when the pid file names another live process.
var ErrAlreadyRunning = errors.New("server already running")

func PIDFile(dataDir string) string {
	return filepath.Join(dataDir, "server.pid")
}

// ReadPID returns the pid recorded in path when that process is still alive, and 0 otherwise.
func ReadPID(path string) int {
	pid, ok := parsePIDFile(path)
	if !ok || !processAlive(pid) {
		return 0
	}
	return pid
}

// claimPIDFile records the current process in path. Stale files left by a dead process are
// replaced. The returned release removes the file only while it still names this process.
func claimPIDFile(path string) (release func(), err error) {
	self := os.Getpid()
	if pid := ReadPID(path); pid != 0 && pid != self {
		return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("claim pid file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(self)), 0o644); err != nil {
		return nil, fmt.Errorf("claim pid file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("claim pid file: %w", err)
	}

	return func() {
		if pid, ok := parsePIDFile(path); ok && pid == self {
			os.Remove(path)
		}
	}, nil
}

func parsePIDFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
