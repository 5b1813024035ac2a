//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const DefaultRoot = "/proc"

// Table reads the process list from a procfs mount.
type Table struct {
	Root string
}

func NewTable() *Table {
	return &Table{Root: DefaultRoot}
}

// FindByName returns the pids whose executable's base name is name.
// Processes that exit mid-scan or whose exe link is unreadable (kernel
// threads, other users' processes) are skipped.
func (t *Table) FindByName(name string) ([]int, error) {
	entries, err := os.ReadDir(t.Root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.Root, err)
	}

	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		exe, err := os.Readlink(filepath.Join(t.Root, e.Name(), "exe"))
		if err != nil {
			continue
		}
		// The binary may have been replaced by an update while running.
		exe = strings.TrimSuffix(exe, " (deleted)")
		if filepath.Base(exe) == name {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// Signal delivers sig to pid through a pidfd, so the pid cannot be recycled
// between opening and signalling. Kernels without pidfd support fall back
// to kill(2). A process that is already gone is not an error.
func (t *Table) Signal(pid int, sig unix.Signal) error {
	fd, err := unix.PidfdOpen(pid, 0)
	if err == unix.ENOSYS {
		return ignoreGone(pid, unix.Kill(pid, sig))
	}
	if err != nil {
		return ignoreGone(pid, err)
	}
	defer unix.Close(fd)

	return ignoreGone(pid, unix.PidfdSendSignal(fd, sig, nil, 0))
}

func ignoreGone(pid int, err error) error {
	if err == nil || err == unix.ESRCH {
		return nil
	}
	return fmt.Errorf("signal pid %d: %w", pid, err)
}
