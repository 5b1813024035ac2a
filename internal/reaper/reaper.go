// Package reaper terminates the helper daemons flatpak leaves running
// once no session needs them any more.
package reaper

import (
	"context"
	"log/slog"

	"golang.org/x/sys/unix"
)

type Reaper struct {
	table  ProcessTable
	signal unix.Signal
	logger *slog.Logger
}

func New(table ProcessTable, logger *slog.Logger) *Reaper {
	return &Reaper{
		table:  table,
		signal: unix.SIGTERM,
		logger: logger,
	}
}

// Reap sends SIGTERM to every process whose executable is named in names
// and returns how many signals were delivered. Failures are logged and
// skipped; nothing is retried and no error is returned.
func (r *Reaper) Reap(ctx context.Context, names []string) int {
	delivered := 0

	for _, name := range names {
		if ctx.Err() != nil {
			r.logger.Warn("reaper: interrupted", "error", ctx.Err())
			return delivered
		}

		pids, err := r.table.FindByName(name)
		if err != nil {
			r.logger.Error("reaper: find daemon", "daemon", name, "error", err)
			continue
		}

		for _, pid := range pids {
			if err := r.table.Signal(pid, r.signal); err != nil {
				r.logger.Error("reaper: signal daemon", "daemon", name, "pid", pid, "error", err)
				continue
			}
			r.logger.Debug("reaped daemon", "daemon", name, "pid", pid)
			delivered++
		}
	}

	if delivered > 0 {
		r.logger.Info("reaper: terminated daemons", "count", delivered)
	}
	return delivered
}
