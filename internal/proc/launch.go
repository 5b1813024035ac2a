//go:build linux

// Package proc holds the process primitives the supervisor needs: spawning
// the launcher, probing and waiting on pids, and finding and signalling
// processes through /proc.
package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Process is a spawned child whose exit is observed exactly once.
type Process interface {
	Pid() int
	Wait() error
}

type CommandLauncher struct {
	Command string
}

// Launch starts the launcher with args, attached to the caller's terminal.
func (l CommandLauncher) Launch(args []string) (Process, error) {
	cmd := exec.Command(l.Command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Command, err)
	}
	return &command{cmd: cmd}, nil
}

type command struct {
	cmd *exec.Cmd
}

func (c *command) Pid() int {
	return c.cmd.Process.Pid
}

func (c *command) Wait() error {
	return c.cmd.Wait()
}

// ExitDescription renders the result of Process.Wait for logging. It
// reports the exit code or terminating signal of an *exec.ExitError.
func ExitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return fmt.Sprintf("signal: %s", status.Signal())
		}
		return fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}
	return err.Error()
}
