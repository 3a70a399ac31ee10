package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Worker.Command != "agentrun-worker" {
		t.Errorf("expected default worker command 'agentrun-worker', got %q", cfg.Worker.Command)
	}

	if !cfg.Worker.InheritEnv {
		t.Error("expected worker.inherit_env to be true")
	}

	if cfg.Worker.KillAfter != 10*time.Second {
		t.Errorf("expected kill_after 10s, got %v", cfg.Worker.KillAfter)
	}

	if cfg.Orchestrator.InboxSize != 1024 {
		t.Errorf("expected inbox size 1024, got %d", cfg.Orchestrator.InboxSize)
	}

	if cfg.Orchestrator.MaxRunDuration != 0 {
		t.Errorf("expected no max run duration, got %v", cfg.Orchestrator.MaxRunDuration)
	}

	if cfg.Notify.SubjectPrefix != "agentrun.runs" {
		t.Errorf("expected subject prefix 'agentrun.runs', got %q", cfg.Notify.SubjectPrefix)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := writeConfig(t, `
worker:
  command: /opt/clinic/bin/transcriber
  args: ["--model", "small"]
  dir: /var/lib/clinic
  env:
    - MODEL_DIR=/models
  kill_after: 3s
state:
  db_path: /tmp/agentrun-test.db
  retention: 720h
orchestrator:
  inbox_size: 64
  max_run_duration: 15m
notify:
  nats_url: nats://localhost:4222
  subject_prefix: clinic.runs
metrics:
  addr: ":9464"
`)

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Worker.Command != "/opt/clinic/bin/transcriber" {
		t.Errorf("expected worker command from file, got %q", cfg.Worker.Command)
	}

	if len(cfg.Worker.Args) != 2 || cfg.Worker.Args[1] != "small" {
		t.Errorf("expected args [--model small], got %v", cfg.Worker.Args)
	}

	if cfg.Worker.KillAfter != 3*time.Second {
		t.Errorf("expected kill_after 3s, got %v", cfg.Worker.KillAfter)
	}

	if cfg.State.Retention != 720*time.Hour {
		t.Errorf("expected retention 720h, got %v", cfg.State.Retention)
	}

	if cfg.Orchestrator.InboxSize != 64 {
		t.Errorf("expected inbox size 64, got %d", cfg.Orchestrator.InboxSize)
	}

	if cfg.Orchestrator.SubscriberBuffer != 256 {
		t.Errorf("expected default subscriber buffer 256, got %d", cfg.Orchestrator.SubscriberBuffer)
	}

	if cfg.Orchestrator.MaxRunDuration != 15*time.Minute {
		t.Errorf("expected max run duration 15m, got %v", cfg.Orchestrator.MaxRunDuration)
	}

	if cfg.Notify.NATSURL != "nats://localhost:4222" {
		t.Errorf("expected nats url, got %q", cfg.Notify.NATSURL)
	}

	if cfg.Metrics.Addr != ":9464" {
		t.Errorf("expected metrics addr ':9464', got %q", cfg.Metrics.Addr)
	}

	if !cfg.Worker.InheritEnv {
		t.Error("expected inherit_env to default to true")
	}
}

func TestLoadFromPath_EnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, "worker:\n  command: from-file\n")
	t.Setenv("AGENTRUN_WORKER_COMMAND", "from-env")
	t.Setenv("AGENTRUN_ORCHESTRATOR_MAX_RUN_DURATION", "90s")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Worker.Command != "from-env" {
		t.Errorf("expected env to win, got %q", cfg.Worker.Command)
	}
	if cfg.Orchestrator.MaxRunDuration != 90*time.Second {
		t.Errorf("expected max run duration 90s, got %v", cfg.Orchestrator.MaxRunDuration)
	}
}

func TestLoadFromPath_ExpandsReferences(t *testing.T) {
	t.Setenv("CLINIC_HOME", "/srv/clinic")
	configPath := writeConfig(t, "worker:\n  command: ${CLINIC_HOME}/bin/worker\nstate:\n  db_path: ${CLINIC_HOME}/runs.db\n")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Worker.Command != "/srv/clinic/bin/worker" {
		t.Errorf("expected expanded command, got %q", cfg.Worker.Command)
	}
	if cfg.DBPath() != "/srv/clinic/runs.db" {
		t.Errorf("expected expanded db path, got %q", cfg.DBPath())
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty command":  "worker:\n  command: \"\"\n",
		"bad env entry":  "worker:\n  env: [\"NOEQUALS\"]\n",
		"negative grace": "worker:\n  kill_after: -1s\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFromPath(writeConfig(t, content)); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Worker.Command = "/usr/local/bin/transcriber"
	cfg.Worker.Env = []string{"MODEL_DIR=/models"}
	cfg.Orchestrator.MaxRunDuration = 20 * time.Minute

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Worker.Command != cfg.Worker.Command {
		t.Errorf("command = %q, want %q", loaded.Worker.Command, cfg.Worker.Command)
	}
	if loaded.Orchestrator.MaxRunDuration != 20*time.Minute {
		t.Errorf("max run duration = %v, want 20m", loaded.Orchestrator.MaxRunDuration)
	}
	if len(loaded.Worker.Env) != 1 || loaded.Worker.Env[0] != "MODEL_DIR=/models" {
		t.Errorf("env = %v", loaded.Worker.Env)
	}
}

func TestWorkerSpec(t *testing.T) {
	t.Setenv("CLINIC_TOKEN", "abc")

	t.Run("inherits when nothing is configured", func(t *testing.T) {
		cfg := Default()
		spec := cfg.WorkerSpec()
		if spec.Env != nil {
			t.Errorf("expected nil env to inherit, got %d entries", len(spec.Env))
		}
		if spec.KillAfter != 10*time.Second {
			t.Errorf("kill after = %v", spec.KillAfter)
		}
	})

	t.Run("appends configured entries", func(t *testing.T) {
		cfg := Default()
		cfg.Worker.Env = []string{"TOKEN=${CLINIC_TOKEN}"}
		spec := cfg.WorkerSpec()
		if len(spec.Env) != len(os.Environ())+1 {
			t.Fatalf("expected inherited env plus one entry, got %d", len(spec.Env))
		}
		if spec.Env[len(spec.Env)-1] != "TOKEN=abc" {
			t.Errorf("last entry = %q", spec.Env[len(spec.Env)-1])
		}
	})

	t.Run("isolated environment", func(t *testing.T) {
		cfg := Default()
		cfg.Worker.InheritEnv = false
		spec := cfg.WorkerSpec()
		if spec.Env == nil || len(spec.Env) != 0 {
			t.Errorf("expected an empty, non-nil env, got %v", spec.Env)
		}
	})
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := "/custom/config/agentrun"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, projectConfigName)
	if err := os.WriteFile(want, []byte("worker:\n  command: w\n"), 0644); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(nested); err != nil {
		t.Fatal(err)
	}

	got := findProjectConfig()
	// TempDir may sit behind a symlink (macOS /var -> /private/var).
	gotResolved, _ := filepath.EvalSymlinks(got)
	wantResolved, _ := filepath.EvalSymlinks(want)
	if gotResolved != wantResolved {
		t.Errorf("findProjectConfig() = %q, want %q", got, want)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if result := expandEnv("${TEST_VAR}"); result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	if result := expandEnv("prefix-${TEST_VAR}-suffix"); result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}
