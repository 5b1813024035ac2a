//go:build linux

package proc

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// exitedPid returns the pid of a child that has already been reaped.
func exitedPid(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(os.Getpid()))
	assert.False(t, Alive(exitedPid(t)))
	assert.False(t, Alive(0))
	assert.False(t, Alive(-1))
}

func TestWaitExitAlreadyDead(t *testing.T) {
	var probes atomic.Int32
	w := &Waiter{
		Interval: time.Hour,
		Alive: func(int) bool {
			probes.Add(1)
			return false
		},
	}

	start := time.Now()
	require.NoError(t, w.WaitExit(context.Background(), 9999))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), probes.Load())
}

func TestWaitExitPollsUntilDead(t *testing.T) {
	var probes atomic.Int32
	w := &Waiter{
		Interval: 5 * time.Millisecond,
		Alive: func(pid int) bool {
			assert.Equal(t, 9999, pid)
			return probes.Add(1) < 4
		},
	}

	require.NoError(t, w.WaitExit(context.Background(), 9999))
	assert.Equal(t, int32(4), probes.Load())
}

func TestWaitExitCancelled(t *testing.T) {
	w := &Waiter{Interval: 5 * time.Millisecond, Alive: func(int) bool { return true }}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := w.WaitExit(ctx, 9999)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitExitRealProcess(t *testing.T) {
	cmd := exec.Command("sleep", "0.2")
	require.NoError(t, cmd.Start())
	// Reap in the background so the pid does not linger as a zombie.
	go cmd.Wait()

	w := NewWaiter(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, w.WaitExit(ctx, cmd.Process.Pid))
}

// fakeProc builds a procfs-like tree where each pid's exe links to target.
func fakeProc(t *testing.T, exes map[int]string) string {
	t.Helper()
	root := t.TempDir()
	for pid, target := range exes {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0755))
		if target != "" {
			require.NoError(t, os.Symlink(target, filepath.Join(dir, "exe")))
		}
	}
	return root
}

func TestFindByName(t *testing.T) {
	root := fakeProc(t, map[int]string{
		10: "/usr/libexec/flatpak-portal",
		11: "/usr/libexec/flatpak-session-helper",
		12: "/usr/libexec/flatpak-portal (deleted)",
		13: "/usr/bin/flatpak-portal-extra",
		14: "", // kernel thread: no exe link
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "uptime"), []byte("1 1"), 0644))

	tbl := &Table{Root: root}

	pids, err := tbl.FindByName("flatpak-portal")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{10, 12}, pids)

	pids, err = tbl.FindByName("flatpak-session-helper")
	require.NoError(t, err)
	assert.Equal(t, []int{11}, pids)

	pids, err = tbl.FindByName("xdg-desktop-portal")
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestFindByNameUnreadableRoot(t *testing.T) {
	tbl := &Table{Root: filepath.Join(t.TempDir(), "missing")}
	_, err := tbl.FindByName("flatpak-portal")
	assert.Error(t, err)
}

func TestFindByNameRealProc(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	pids, err := NewTable().FindByName(filepath.Base(self))
	require.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())
}

func TestSignalTerminatesProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	require.NoError(t, NewTable().Signal(cmd.Process.Pid, unix.SIGTERM))

	err := cmd.Wait()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	status := exitErr.Sys().(syscall.WaitStatus)
	assert.True(t, status.Signaled())
	assert.Equal(t, syscall.SIGTERM, status.Signal())
}

func TestSignalGoneProcess(t *testing.T) {
	assert.NoError(t, NewTable().Signal(exitedPid(t), unix.SIGTERM))
}

func TestLaunch(t *testing.T) {
	p, err := CommandLauncher{Command: "sh"}.Launch([]string{"-c", "exit 3"})
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	err = p.Wait()
	assert.Equal(t, "exit status 3", ExitDescription(err))
}

func TestLaunchMissingCommand(t *testing.T) {
	_, err := CommandLauncher{Command: "/nonexistent/flatpak"}.Launch(nil)
	assert.Error(t, err)
}

func TestExitDescription(t *testing.T) {
	assert.Equal(t, "exit status 0", ExitDescription(nil))
	assert.Equal(t, "boom", ExitDescription(errors.New("boom")))

	cmd := exec.Command("sh", "-c", "kill -KILL $$")
	err := cmd.Run()
	assert.Equal(t, "signal: killed", ExitDescription(err))
}
