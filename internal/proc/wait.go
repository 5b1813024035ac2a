//go:build linux

package proc

import (
	"context"
	"time"

	"golang.org/x/sys/unix"
)

// Alive probes pid with signal 0. A process we may not signal still exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

type Waiter struct {
	Interval time.Duration
	Alive    func(pid int) bool
}

func NewWaiter(interval time.Duration) *Waiter {
	return &Waiter{Interval: interval, Alive: Alive}
}

// WaitExit blocks until pid is no longer alive. The first probe happens
// immediately; later probes follow every Interval. There is no timeout,
// only ctx cancellation.
func (w *Waiter) WaitExit(ctx context.Context, pid int) error {
	if !w.Alive(pid) {
		return nil
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.Alive(pid) {
				return nil
			}
		}
	}
}
