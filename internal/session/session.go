// Package session supervises one flatpak invocation: it launches the
// front-end, counts itself in the per-user registry, waits for the
// sandboxed workload to exit and, as the last active session, terminates
// the helper daemons flatpak leaves behind.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/p-arndt/flatkap/internal/config"
	"github.com/p-arndt/flatkap/internal/proc"
	"github.com/p-arndt/flatkap/internal/store"
)

// Deps are the collaborators a session drives. History may be nil.
type Deps struct {
	UID      string
	Launcher Launcher
	Registry Registry
	Locator  InstanceLocator
	Waiter   ExitWaiter
	Reaper   DaemonReaper
	History  HistoryStore
	Logger   *slog.Logger
}

// Session is one launched and registered flatpak invocation.
type Session struct {
	ID          string
	UID         string
	RegistryDir string
	LauncherPID string
	StartedAt   time.Time

	cfg      *config.Config
	deps     Deps
	launcher proc.Process
	logger   *slog.Logger
}

// New launches the front-end with args and registers the session. If the
// launch fails nothing is registered. If registration fails the launcher
// is left running and no session is returned.
func New(cfg *config.Config, deps Deps, args []string) (*Session, error) {
	p, err := deps.Launcher.Launch(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	pid := strconv.Itoa(p.Pid())
	if err := deps.Registry.Register(pid); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegister, &IOError{Op: "register " + pid, Err: err})
	}

	s := &Session{
		ID:          uuid.New().String(),
		UID:         deps.UID,
		RegistryDir: deps.Registry.Dir(),
		LauncherPID: pid,
		StartedAt:   time.Now(),
		cfg:         cfg,
		deps:        deps,
		launcher:    p,
	}
	s.logger = deps.Logger.With("session_id", s.ID, "launcher_pid", pid)
	s.logger.Info("session registered", "registry", s.RegistryDir, "args", args)

	if deps.History != nil {
		err := deps.History.CreateSession(&store.Session{
			ID:          s.ID,
			UID:         s.UID,
			LauncherPID: p.Pid(),
			Args:        args,
			StartedAt:   s.StartedAt,
		})
		if err != nil {
			s.logger.Warn("history: record start", "error", err)
		}
	}

	return s, nil
}

// Run waits for the launcher, then for the sandboxed workload, reaps the
// shared daemons if this is the last session, and deregisters. The
// registry entry is removed on every return path.
func (s *Session) Run(ctx context.Context) (err error) {
	out := store.Outcome{}
	defer func() {
		err = s.finish(out, err)
	}()

	// A failing front-end is not fatal: the workload may still be running.
	werr := s.launcher.Wait()
	s.logger.Debug("launcher exited", "status", proc.ExitDescription(werr))

	workload, err := s.deps.Locator.Locate(s.LauncherPID)
	if err != nil {
		return fmt.Errorf("locate sandbox instance: %w", err)
	}
	out.WorkloadPID = workload
	s.logger.Debug("sandbox instance found", "workload_pid", workload)

	if err := s.deps.Waiter.WaitExit(ctx, workload); err != nil {
		return fmt.Errorf("wait for workload %d: %w", workload, err)
	}
	s.logger.Debug("workload exited", "workload_pid", workload)

	out.DaemonsReaped = s.reapIfLast(ctx)
	return nil
}

// reapIfLast terminates the daemons when this session's own entry is the
// only one left. The count is a racy snapshot; zero means our entry went
// missing and is treated like "others remain".
func (s *Session) reapIfLast(ctx context.Context) bool {
	n, err := s.deps.Registry.Count()
	if err != nil {
		s.logger.Warn("count sessions, skipping daemon cleanup", "error", err)
		return false
	}
	if n != 1 {
		s.logger.Debug("other sessions active, keeping daemons", "count", n)
		return false
	}

	s.deps.Reaper.Reap(ctx, s.cfg.Daemons)
	return true
}

// finish deregisters and records the outcome. A deregistration failure
// only becomes the result when the run itself succeeded.
func (s *Session) finish(out store.Outcome, runErr error) error {
	if err := s.deps.Registry.Deregister(s.LauncherPID); err != nil {
		ioErr := &IOError{Op: "deregister " + s.LauncherPID, Err: err}
		if runErr == nil {
			runErr = ioErr
		} else {
			s.logger.Error("deregister session", "error", ioErr)
		}
	}

	out.FinishedAt = time.Now()
	switch {
	case runErr == nil:
		out.Status = store.StatusFinished
	case errors.Is(runErr, context.Canceled):
		out.Status = store.StatusInterrupted
		out.Error = runErr.Error()
	default:
		out.Status = store.StatusFailed
		out.Error = runErr.Error()
	}

	if s.deps.History != nil {
		if err := s.deps.History.FinishSession(s.ID, out); err != nil {
			s.logger.Warn("history: record finish", "error", err)
		}
	}

	s.logger.Info("session ended",
		"status", out.Status,
		"workload_pid", out.WorkloadPID,
		"daemons_reaped", out.DaemonsReaped,
		"duration", units.HumanDuration(out.FinishedAt.Sub(s.StartedAt)),
	)
	return runErr
}
