package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/p-arndt/flatkap/internal/config"
	"github.com/p-arndt/flatkap/internal/store"
)

// TestConfig returns a Config with the default names and every path rooted
// in a fresh temporary directory.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Launcher:       "flatpak",
		RegistryPrefix: ".flatkap",
		TempRoot:       filepath.Join(root, "tmp"),
		RuntimeRoot:    filepath.Join(root, "run", "user"),
		SandboxSuffix:  ".flatpak",
		DescriptorFile: "bwrapinfo.json",
		PIDField:       "child-pid",
		Daemons:        []string{"flatpak-session-helper", "flatpak-portal"},
		PollIntervalMs: 10,
		LogLevel:       "error",
	}
}

// WriteInstance publishes a sandbox instance directory the way the
// sandboxing runtime does: a pid file naming the launcher and a descriptor
// naming the workload.
func WriteInstance(t *testing.T, sandboxDir, name string, launcherPID, workloadPID int) {
	t.Helper()
	dir := filepath.Join(sandboxDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create instance dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(launcherPID)), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}
	desc := `{"child-pid": ` + strconv.Itoa(workloadPID) + `, "mnt-namespace": 4026532551}`
	if err := os.WriteFile(filepath.Join(dir, "bwrapinfo.json"), []byte(desc), 0644); err != nil {
		t.Fatalf("failed to write descriptor: %v", err)
	}
}

// NewTestStore creates a history store in a temporary directory.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
