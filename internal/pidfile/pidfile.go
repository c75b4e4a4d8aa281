// Package pidfile guards the API server against a second instance sharing
// the same PID file.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrRunning is returned by Acquire while another live process owns the file.
var ErrRunning = errors.New("another castcheck server is running")

// Pidfile is an acquired PID file.
type Pidfile struct {
	path string
}

// Acquire writes the current PID to path. A file left behind by a dead
// process is taken over.
func Acquire(path string) (*Pidfile, error) {
	p := &Pidfile{path: path}
	if pid, err := p.Read(); err == nil && pid != os.Getpid() && alive(pid) {
		return nil, fmt.Errorf("%w (pid %d, %s)", ErrRunning, pid, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pidfile directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write pidfile: %w", err)
	}
	return p, nil
}

// Read returns the PID stored in the file.
func (p *Pidfile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}
	return pid, nil
}

// Release removes the file if it still holds our PID.
func (p *Pidfile) Release() error {
	if pid, err := p.Read(); err != nil || pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Path returns the PID file path
func (p *Pidfile) Path() string {
	return p.path
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, os.ErrPermission)
}
