// flatkap runs flatpak and cleans up after it.
//
// Usage:
//
//	flatkap <flatpak arguments...>
//
// Every argument is passed to flatpak unchanged. flatkap waits until the
// sandboxed application has exited, not just the flatpak front-end, and
// when no other flatkap session of the same user remains it terminates
// flatpak-session-helper and flatpak-portal.
//
// Settings are read from $FLATKAP_CONFIG (default
// ~/.config/flatkap/config.yaml) and FLATKAP_* environment variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/p-arndt/flatkap/internal/config"
	"github.com/p-arndt/flatkap/internal/instance"
	"github.com/p-arndt/flatkap/internal/proc"
	"github.com/p-arndt/flatkap/internal/reaper"
	"github.com/p-arndt/flatkap/internal/registry"
	"github.com/p-arndt/flatkap/internal/session"
	"github.com/p-arndt/flatkap/internal/store"
)

func main() {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, errorLine(fmt.Errorf("load config: %w", err)))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	// Interrupts stop the wait for the workload; the session still deregisters.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger, os.Args[1:])
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	uid := strconv.Itoa(os.Getuid())

	deps := session.Deps{
		UID:      uid,
		Launcher: proc.CommandLauncher{Command: cfg.Launcher},
		Registry: registry.New(cfg.RegistryDir(uid)),
		Locator:  instance.NewLocator(cfg.SandboxDir(uid), cfg.DescriptorFile, cfg.PIDField),
		Waiter:   proc.NewWaiter(cfg.PollInterval()),
		Reaper:   reaper.New(proc.NewTable(), logger),
		Logger:   logger,
	}

	if cfg.History.DBPath != "" {
		st, err := store.New(cfg.History.DBPath)
		if err != nil {
			logger.Warn("history disabled", "path", cfg.History.DBPath, "error", err)
		} else {
			defer st.Close()
			deps.History = st
		}
	}

	s, err := session.New(cfg, deps, args)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// errorLine formats the single message printed for a failed run.
func errorLine(err error) string {
	if session.IsIOError(err) {
		return "IOError: " + err.Error()
	}
	return "Error: " + err.Error()
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return level
}
