package reaper

import "golang.org/x/sys/unix"

// ProcessTable abstracts the process operations needed by the reaper.
type ProcessTable interface {
	FindByName(name string) ([]int, error)
	Signal(pid int, sig unix.Signal) error
}
