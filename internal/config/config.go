// Package config handles configuration loading and management for agentrun.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/agentrun/internal/notify"
	"github.com/ShayCichocki/agentrun/internal/orchestrator"
	"github.com/ShayCichocki/agentrun/internal/signals"
	"github.com/ShayCichocki/agentrun/internal/state"
	"github.com/ShayCichocki/agentrun/internal/worker"
)

const (
	appName           = "agentrun"
	projectConfigName = ".agentrun.yaml"
	envPrefix         = "AGENTRUN"
)

// Config holds all configuration for agentrun.
type Config struct {
	Worker       WorkerConfig       `mapstructure:"worker"`
	State        StateConfig        `mapstructure:"state"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Signals      SignalsConfig      `mapstructure:"signals"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Log          LogConfig          `mapstructure:"log"`
}

// WorkerConfig describes the process launched for every task.
type WorkerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Dir     string   `mapstructure:"dir"`
	// Env holds KEY=VALUE entries; ${VAR} references are expanded.
	Env []string `mapstructure:"env"`
	// InheritEnv passes the orchestrator's own environment to workers.
	InheritEnv bool `mapstructure:"inherit_env"`
	// KillAfter escalates a cancel to SIGKILL. Zero never escalates.
	KillAfter time.Duration `mapstructure:"kill_after"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath is the SQLite file. Empty uses the XDG data directory.
	DBPath string `mapstructure:"db_path"`
	// Retention purges finished runs older than this on startup. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

// OrchestratorConfig holds router and lifecycle settings.
type OrchestratorConfig struct {
	InboxSize        int           `mapstructure:"inbox_size"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	MaxRunDuration   time.Duration `mapstructure:"max_run_duration"`
	CloseGrace       time.Duration `mapstructure:"close_grace"`
}

// SignalsConfig holds the cross-process cancel settings.
type SignalsConfig struct {
	// Dir is where cancel files are dropped. Empty uses the runtime directory.
	Dir string `mapstructure:"dir"`
}

// NotifyConfig holds the external notification settings.
type NotifyConfig struct {
	// NATSURL enables publishing observations to NATS when set.
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9464".
	Addr string `mapstructure:"addr"`
}

// LogConfig holds debug logging settings.
type LogConfig struct {
	DebugFile string `mapstructure:"debug_file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (AGENTRUN_WORKER_COMMAND, AGENTRUN_STATE_DB_PATH, ...)
// 2. Project config (.agentrun.yaml in current directory or parent)
// 3. User config (~/.config/agentrun/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
// Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Worker.Command = expandEnv(cfg.Worker.Command)
	cfg.Worker.Dir = expandEnv(cfg.Worker.Dir)
	cfg.State.DBPath = expandEnv(cfg.State.DBPath)
	cfg.Signals.Dir = expandEnv(cfg.Signals.Dir)
	cfg.Log.DebugFile = expandEnv(cfg.Log.DebugFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Worker.Command) == "" {
		return fmt.Errorf("config: worker.command is required")
	}
	for _, kv := range c.Worker.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("config: worker.env entry %q is not KEY=VALUE", kv)
		}
	}
	if c.Worker.KillAfter < 0 {
		return fmt.Errorf("config: worker.kill_after must not be negative")
	}
	if c.Orchestrator.MaxRunDuration < 0 {
		return fmt.Errorf("config: orchestrator.max_run_duration must not be negative")
	}
	return nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("worker.command", cfg.Worker.Command)
	v.Set("worker.args", cfg.Worker.Args)
	v.Set("worker.dir", cfg.Worker.Dir)
	v.Set("worker.env", cfg.Worker.Env)
	v.Set("worker.inherit_env", cfg.Worker.InheritEnv)
	v.Set("worker.kill_after", cfg.Worker.KillAfter.String())
	v.Set("state.db_path", cfg.State.DBPath)
	v.Set("state.retention", cfg.State.Retention.String())
	v.Set("orchestrator.inbox_size", cfg.Orchestrator.InboxSize)
	v.Set("orchestrator.subscriber_buffer", cfg.Orchestrator.SubscriberBuffer)
	v.Set("orchestrator.max_run_duration", cfg.Orchestrator.MaxRunDuration.String())
	v.Set("orchestrator.close_grace", cfg.Orchestrator.CloseGrace.String())
	v.Set("signals.dir", cfg.Signals.Dir)
	v.Set("notify.nats_url", cfg.Notify.NATSURL)
	v.Set("notify.subject_prefix", cfg.Notify.SubjectPrefix)
	v.Set("metrics.addr", cfg.Metrics.Addr)
	v.Set("log.debug_file", cfg.Log.DebugFile)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// WorkerSpec resolves the launch parameters for workers.
func (c *Config) WorkerSpec() worker.Spec {
	spec := worker.Spec{
		Command:   c.Worker.Command,
		Args:      append([]string(nil), c.Worker.Args...),
		Dir:       c.Worker.Dir,
		KillAfter: c.Worker.KillAfter,
	}

	if c.Worker.InheritEnv && len(c.Worker.Env) == 0 {
		return spec
	}

	var env []string
	if c.Worker.InheritEnv {
		env = append(env, os.Environ()...)
	}
	for _, kv := range c.Worker.Env {
		env = append(env, expandEnv(kv))
	}
	spec.Env = append([]string{}, env...)
	return spec
}

// DBPath returns the SQLite file to use.
func (c *Config) DBPath() string {
	if c.State.DBPath != "" {
		return c.State.DBPath
	}
	return state.DefaultDBPath()
}

// SignalsDir returns the directory cancel signals are exchanged in.
func (c *Config) SignalsDir() string {
	if c.Signals.Dir != "" {
		return c.Signals.Dir
	}
	return signals.DefaultDir()
}

// OrchestratorOptions translates the orchestrator settings into options.
func (c *Config) OrchestratorOptions() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithInboxSize(c.Orchestrator.InboxSize),
		orchestrator.WithMaxRunDuration(c.Orchestrator.MaxRunDuration),
		orchestrator.WithCloseGrace(c.Orchestrator.CloseGrace),
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.command", "agentrun-worker")
	v.SetDefault("worker.args", []string{})
	v.SetDefault("worker.dir", "")
	v.SetDefault("worker.env", []string{})
	v.SetDefault("worker.inherit_env", true)
	v.SetDefault("worker.kill_after", "10s")

	// State defaults
	v.SetDefault("state.db_path", "")
	v.SetDefault("state.retention", "0s")

	// Orchestrator defaults
	v.SetDefault("orchestrator.inbox_size", orchestrator.DefaultInboxSize)
	v.SetDefault("orchestrator.subscriber_buffer", notify.DefaultSubscriberBuffer)
	v.SetDefault("orchestrator.max_run_duration", "0s")
	v.SetDefault("orchestrator.close_grace", orchestrator.DefaultCloseGrace.String())

	v.SetDefault("signals.dir", "")

	// Notification defaults
	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject_prefix", notify.DefaultSubjectPrefix)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.debug_file", "")
}

// getUserConfigDir returns the XDG config directory for agentrun.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// findProjectConfig searches for .agentrun.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, projectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Command:    "agentrun-worker",
			Args:       []string{},
			Env:        []string{},
			InheritEnv: true,
			KillAfter:  10 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			InboxSize:        orchestrator.DefaultInboxSize,
			SubscriberBuffer: notify.DefaultSubscriberBuffer,
			CloseGrace:       orchestrator.DefaultCloseGrace,
		},
		Notify: NotifyConfig{
			SubjectPrefix: notify.DefaultSubjectPrefix,
		},
	}
}
