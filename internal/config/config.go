package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HistoryConfig struct {
	DBPath string `yaml:"db_path"` // empty disables the journal
}

type Config struct {
	Launcher       string        `yaml:"launcher"`
	RegistryPrefix string        `yaml:"registry_prefix"`
	TempRoot       string        `yaml:"temp_root"`
	RuntimeRoot    string        `yaml:"runtime_root"`
	SandboxSuffix  string        `yaml:"sandbox_suffix"`
	DescriptorFile string        `yaml:"descriptor_file"`
	PIDField       string        `yaml:"pid_field"`
	Daemons        []string      `yaml:"daemons"`
	PollIntervalMs int           `yaml:"poll_interval_ms"`
	LogLevel       string        `yaml:"log_level"`
	History        HistoryConfig `yaml:"history"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Launcher:       "flatpak",
		RegistryPrefix: ".flatkap",
		RuntimeRoot:    "/run/user",
		SandboxSuffix:  ".flatpak",
		DescriptorFile: "bwrapinfo.json",
		PIDField:       "child-pid",
		Daemons:        []string{"flatpak-session-helper", "flatpak-portal"},
		PollIntervalMs: 1000,
		LogLevel:       "warn",
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// DefaultPath returns $FLATKAP_CONFIG, or config.yaml under the user's
// config directory. An empty string means no config file is consulted.
func DefaultPath() string {
	if v := os.Getenv("FLATKAP_CONFIG"); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "flatkap", "config.yaml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLATKAP_LAUNCHER"); v != "" {
		cfg.Launcher = v
	}
	if v := os.Getenv("FLATKAP_REGISTRY_PREFIX"); v != "" {
		cfg.RegistryPrefix = v
	}
	if v := os.Getenv("FLATKAP_TEMP_ROOT"); v != "" {
		cfg.TempRoot = v
	}
	if v := os.Getenv("FLATKAP_RUNTIME_ROOT"); v != "" {
		cfg.RuntimeRoot = v
	}
	if v := os.Getenv("FLATKAP_SANDBOX_SUFFIX"); v != "" {
		cfg.SandboxSuffix = v
	}
	if v := os.Getenv("FLATKAP_DAEMONS"); v != "" {
		cfg.Daemons = strings.Split(v, ",")
	}
	if v := os.Getenv("FLATKAP_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollIntervalMs = n
		}
	}
	if v := os.Getenv("FLATKAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if os.Getenv("FLATKAP_DEBUG") != "" {
		cfg.LogLevel = "debug"
	}
	if v := os.Getenv("FLATKAP_HISTORY_DB"); v != "" {
		cfg.History.DBPath = v
	}
}

// PollInterval is the liveness probe period for the sandboxed workload.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RegistryDir is the per-user directory shared by all concurrent sessions.
func (c *Config) RegistryDir(uid string) string {
	root := c.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	return filepath.Join(root, c.RegistryPrefix+"-"+uid)
}

// SandboxDir holds one subdirectory per running sandbox instance.
func (c *Config) SandboxDir(uid string) string {
	return filepath.Join(c.RuntimeRoot, uid, c.SandboxSuffix)
}
