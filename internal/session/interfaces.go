package session

import (
	"context"

	"github.com/p-arndt/flatkap/internal/proc"
	"github.com/p-arndt/flatkap/internal/store"
)

type Launcher interface {
	Launch(args []string) (proc.Process, error)
}

type Registry interface {
	Dir() string
	Register(id string) error
	Deregister(id string) error
	Count() (int, error)
}

type InstanceLocator interface {
	Locate(launcherPID string) (int, error)
}

type ExitWaiter interface {
	WaitExit(ctx context.Context, pid int) error
}

type DaemonReaper interface {
	Reap(ctx context.Context, names []string) int
}

type HistoryStore interface {
	CreateSession(sess *store.Session) error
	FinishSession(id string, out store.Outcome) error
}
