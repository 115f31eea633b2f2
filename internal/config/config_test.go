package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cohortlabs/cohort/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Orchestration.Mode != "adaptive" {
		t.Errorf("expected default mode 'adaptive', got %q", cfg.Orchestration.Mode)
	}
	if cfg.Orchestration.MemoryCeilingMB != 4096 {
		t.Errorf("expected memory ceiling 4096, got %v", cfg.Orchestration.MemoryCeilingMB)
	}
	if cfg.Orchestration.ConsensusThreshold != 0.75 {
		t.Errorf("expected consensus threshold 0.75, got %v", cfg.Orchestration.ConsensusThreshold)
	}
	if cfg.Limits.MaxConcurrentAgents != 4 {
		t.Errorf("expected max_concurrent_agents 4, got %d", cfg.Limits.MaxConcurrentAgents)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("expected max_retries 3, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("expected base_delay 1s, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Timeouts.Planner != 5*time.Minute {
		t.Errorf("expected planner timeout 5m, got %v", cfg.Timeouts.Planner)
	}
	if cfg.Timeouts.Tester != 2*time.Minute {
		t.Errorf("expected tester timeout 2m, got %v", cfg.Timeouts.Tester)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
orchestration:
  mode: full_orchestration
  memory_ceiling_mb: 1024
  plan_retention: 10m
limits:
  max_concurrent_agents: 2
  max_wall_clock: 5m
retry:
  max_retries: 1
  base_delay: 100ms
timeouts:
  coder: 90s
anthropic:
  api_key: test-key
memory:
  path: /tmp/cohort.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Orchestration.Mode != "full_orchestration" {
		t.Errorf("expected mode 'full_orchestration', got %q", cfg.Orchestration.Mode)
	}
	if cfg.Orchestration.MemoryCeilingMB != 1024 {
		t.Errorf("expected memory ceiling 1024, got %v", cfg.Orchestration.MemoryCeilingMB)
	}
	if cfg.Orchestration.PlanRetention != 10*time.Minute {
		t.Errorf("expected plan retention 10m, got %v", cfg.Orchestration.PlanRetention)
	}
	if cfg.Limits.MaxConcurrentAgents != 2 {
		t.Errorf("expected max_concurrent_agents 2, got %d", cfg.Limits.MaxConcurrentAgents)
	}
	if cfg.Retry.MaxRetries != 1 {
		t.Errorf("expected max_retries 1, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay != 100*time.Millisecond {
		t.Errorf("expected base_delay 100ms, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Timeouts.Coder != 90*time.Second {
		t.Errorf("expected coder timeout 90s, got %v", cfg.Timeouts.Coder)
	}
	// Unset keys keep their defaults.
	if cfg.Timeouts.Planner != 5*time.Minute {
		t.Errorf("expected defaulted planner timeout 5m, got %v", cfg.Timeouts.Planner)
	}
	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Memory.Path != "/tmp/cohort.db" {
		t.Errorf("expected memory path '/tmp/cohort.db', got %q", cfg.Memory.Path)
	}
}

func TestOrchestratorTranslation(t *testing.T) {
	cfg := Default()
	cfg.Orchestration.Mode = "analysis_only"
	cfg.Timeouts.Coder = 42 * time.Second
	cfg.Limits.MaxConcurrentAgents = 7

	oc, err := cfg.Orchestrator()
	if err != nil {
		t.Fatalf("Orchestrator() failed: %v", err)
	}
	if oc.Mode != models.ModeAnalysisOnly {
		t.Errorf("expected mode analysis_only, got %s", oc.Mode)
	}
	if got := oc.Strategy.TimeoutFor(models.AgentTypeCoder); got != 42*time.Second {
		t.Errorf("expected coder timeout 42s, got %v", got)
	}
	if oc.Strategy.Limits.MaxConcurrentAgents != 7 {
		t.Errorf("expected max_concurrent_agents 7, got %d", oc.Strategy.Limits.MaxConcurrentAgents)
	}

	cfg.Orchestration.Mode = "turbo"
	if _, err := cfg.Orchestrator(); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestWriteDefault(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ".cohort", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.Orchestration.Mode != "adaptive" {
		t.Errorf("expected generated mode 'adaptive', got %q", cfg.Orchestration.Mode)
	}
	if cfg.Limits.MaxWallClock != 30*time.Minute {
		t.Errorf("expected generated max_wall_clock 30m, got %v", cfg.Limits.MaxWallClock)
	}

	// A second init must not clobber the existing file.
	if err := WriteDefault(path); err == nil {
		t.Error("expected error overwriting existing config")
	}
}

func TestExpandEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "expanded-value")
	defer os.Unsetenv("TEST_VAR")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	dir := getUserConfigDir()
	expected := "/custom/config/cohort"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestWatchReloads(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("orchestration:\n  mode: adaptive\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	changed := make(chan *Config, 4)
	cfg, err := Watch(path, func(c *Config) { changed <- c })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if cfg.Orchestration.Mode != "adaptive" {
		t.Fatalf("initial mode = %q, want adaptive", cfg.Orchestration.Mode)
	}

	if err := os.WriteFile(path, []byte("orchestration:\n  mode: disabled\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config file: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Orchestration.Mode == "disabled" {
				return
			}
		case <-deadline:
			t.Fatal("config change callback never fired with new mode")
		}
	}
}
