package process

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// PIDResult represents the outcome of reading a PID file.
type PIDResult int

const (
	// PIDResultOK means the PID was read and the process exists.
	PIDResultOK PIDResult = iota
	// PIDResultFailed means the PID file could not be read or parsed.
	PIDResultFailed
	// PIDResultTerminated means the PID was valid but the process is gone.
	PIDResultTerminated
)

// ReadPIDFile reads a process ID from path and probes it with kill(pid, 0).
func ReadPIDFile(path string) (int, PIDResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, PIDResultFailed, fmt.Errorf("reading PID file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		content = content[:idx]
	}
	if content == "" {
		return 0, PIDResultFailed, errors.New("PID file is empty")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(content))
	if err != nil {
		return 0, PIDResultFailed, fmt.Errorf("invalid PID in file: %w", err)
	}
	if pid <= 0 {
		return 0, PIDResultFailed, fmt.Errorf("invalid PID value: %d", pid)
	}

	err = killFunc(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		// EPERM: alive, owned by someone else.
		return pid, PIDResultOK, nil
	case errors.Is(err, unix.ESRCH):
		return pid, PIDResultTerminated, nil
	default:
		return pid, PIDResultFailed, fmt.Errorf("checking process %d: %w", pid, err)
	}
}

// WritePIDFile records our PID in path, refusing to overwrite the file of
// a live process other than ourselves.
func WritePIDFile(path string) error {
	pid, result, _ := ReadPIDFile(path)
	if result == PIDResultOK && pid != os.Getpid() {
		return fmt.Errorf("another instance is running (PID %d, %s)", pid, path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing PID file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes path if it still names this process.
func RemovePIDFile(path string) error {
	pid, result, _ := ReadPIDFile(path)
	if result == PIDResultFailed || pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}
