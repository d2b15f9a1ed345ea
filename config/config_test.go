package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	var cfg ServiceConfig
	cfg.ApplyDefaults()

	if cfg.Name != "memrun" {
		t.Errorf("expected name 'memrun', got %q", cfg.Name)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected 'development', got %q", cfg.Environment)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info log level, got %q", cfg.Logging.Level)
	}
	if cfg.Launcher.DefaultStdin != "inherit" || cfg.Launcher.DefaultStdout != "inherit" || cfg.Launcher.DefaultStderr != "inherit" {
		t.Errorf("expected inherited stdio, got %+v", cfg.Launcher)
	}
	if cfg.Launcher.GracePeriod != DefaultGracePeriod {
		t.Errorf("expected grace period %v, got %v", DefaultGracePeriod, cfg.Launcher.GracePeriod)
	}
	if cfg.Launcher.Retry.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, cfg.Launcher.Retry.MaxAttempts)
	}
	if cfg.Telemetry.Endpoint != "" {
		t.Errorf("disabled telemetry should stay empty, got %q", cfg.Telemetry.Endpoint)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestServiceConfigDebugRaisesLogLevel(t *testing.T) {
	cfg := ServiceConfig{Debug: true}
	cfg.ApplyDefaults()
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServiceConfig)
		errMsg string
	}{
		{"invalid environment", func(c *ServiceConfig) { c.Environment = "qa" }, "environment: must be one of: development staging production"},
		{"invalid log level", func(c *ServiceConfig) { c.Logging.Level = "loud" }, "logging: logging.level"},
		{"invalid stdio kind", func(c *ServiceConfig) { c.Launcher.DefaultStdout = "file" }, "launcher.stdout: must be one of"},
		{"negative grace period", func(c *ServiceConfig) { c.Launcher.GracePeriod = -time.Second }, "grace_period"},
		{"zero backoff factor", func(c *ServiceConfig) { c.Launcher.Retry.Factor = 0.5 }, "factor"},
		{"max backoff below initial", func(c *ServiceConfig) { c.Launcher.Retry.MaxBackoff = time.Millisecond }, "launcher.retry.max_backoff"},
		{"sample rate above one", func(c *ServiceConfig) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg ServiceConfig
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestTelemetryApplyDefaults(t *testing.T) {
	cfg := TelemetryConfig{Enabled: true}
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" || cfg.SampleRate != 1.0 || cfg.MetricInterval != 15*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")

	yamlContent := `
name: memrun
environment: staging
launcher:
  stdout: "null"
  grace_period: 250ms
  retry:
    max_attempts: 7
  breaker:
    enabled: true
    cooldown: 1m
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg ServiceConfig
	err := LoadConfig("memrun", &cfg, WithConfigFile(configPath), WithEnviron(func() []string { return nil }))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("expected environment 'staging', got %q", cfg.Environment)
	}
	if cfg.Launcher.DefaultStdout != "null" {
		t.Errorf("expected stdout null, got %q", cfg.Launcher.DefaultStdout)
	}
	if cfg.Launcher.GracePeriod != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Launcher.GracePeriod)
	}
	if cfg.Launcher.Retry.MaxAttempts != 7 {
		t.Errorf("expected 7 attempts, got %d", cfg.Launcher.Retry.MaxAttempts)
	}
	if !cfg.Launcher.Breaker.Enabled || cfg.Launcher.Breaker.Cooldown != time.Minute {
		t.Errorf("unexpected breaker: %+v", cfg.Launcher.Breaker)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte("launcher:\n  grace_period: 1s\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	environ := func() []string {
		return []string{
			"MEMRUN_LAUNCHER_GRACE_PERIOD=3s",
			"MEMRUN_LOGGING_LEVEL=debug",
			"LAUNCHER_TIMEOUT=9s",
			"PATH=/usr/bin",
		}
	}

	var cfg ServiceConfig
	if err := LoadConfig("memrun", &cfg, WithConfigFile(configPath), WithEnviron(environ)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Launcher.GracePeriod != 3*time.Second {
		t.Errorf("expected env override 3s, got %v", cfg.Launcher.GracePeriod)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Logging.Level)
	}
	if cfg.Launcher.Timeout != 0 {
		t.Errorf("unprefixed variables must be ignored, got timeout %v", cfg.Launcher.Timeout)
	}
}

func TestLoadConfigEnvFileDoesNotLeak(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("MEMRUN_LAUNCHER_TIMEOUT=4s\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	var cfg ServiceConfig
	err := LoadConfig("memrun", &cfg,
		WithConfigFile(filepath.Join(dir, "missing.yml")),
		WithEnvFile(envPath),
		WithEnviron(func() []string { return nil }),
	)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Launcher.Timeout != 4*time.Second {
		t.Errorf("expected 4s, got %v", cfg.Launcher.Timeout)
	}
	if _, ok := os.LookupEnv("MEMRUN_LAUNCHER_TIMEOUT"); ok {
		t.Error("env file must not modify the process environment")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg ServiceConfig
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte("launcher: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	var cfg ServiceConfig
	if err := LoadConfig("memrun", &cfg, WithConfigFile(configPath)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{configDir: "/home/u/.config", files: map[string]bool{
		"/home/u/.config/memrun/config.yml": true,
		"./.env":                            true,
	}}
	files := ResolveFiles(fs, "memrun", LoaderConfig{})
	if files.ConfigFile != "/home/u/.config/memrun/config.yml" {
		t.Errorf("expected user config file, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Errorf("expected ./.env, got %q", files.EnvFile)
	}
}

func TestResolverPrefersWorkingDirectory(t *testing.T) {
	fs := &mockFS{configDir: "/home/u/.config", files: map[string]bool{
		"./memrun.yml":                      true,
		"/home/u/.config/memrun/config.yml": true,
	}}
	files := ResolveFiles(fs, "memrun", LoaderConfig{})
	if files.ConfigFile != "./memrun.yml" {
		t.Errorf("expected ./memrun.yml, got %q", files.ConfigFile)
	}
}

func TestResolverExplicitPaths(t *testing.T) {
	files := ResolveFiles(&mockFS{}, "memrun", LoaderConfig{ConfigFile: "/etc/m.yml", EnvFile: "/etc/m.env"})
	if files.ConfigFile != "/etc/m.yml" || files.EnvFile != "/etc/m.env" {
		t.Errorf("explicit paths not kept: %+v", files)
	}
}

type mockFS struct {
	files     map[string]bool
	configDir string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) ReadEnv(path string) (map[string]string, error) { return nil, nil }
func (m *mockFS) UserConfigDir() (string, error) { return m.configDir, nil }

func TestEnvKeys(t *testing.T) {
	keys := envKeys(&ServiceConfig{})
	for env, want := range map[string]string{
		"NAME":                        "name",
		"LOGGING_LEVEL":               "logging.level",
		"LOGGING_NO_COLOR":            "logging.no_color",
		"LAUNCHER_STDOUT":             "launcher.stdout",
		"LAUNCHER_GRACE_PERIOD":       "launcher.grace_period",
		"LAUNCHER_RETRY_MAX_ATTEMPTS": "launcher.retry.max_attempts",
		"LAUNCHER_BREAKER_ENABLED":    "launcher.breaker.enabled",
		"TELEMETRY_SAMPLE_RATE":       "telemetry.sample_rate",
	} {
		if got := keys[env]; got != want {
			t.Errorf("keys[%s] = %q, want %q", env, got, want)
		}
	}
	if _, ok := keys["LAUNCHER"]; ok {
		t.Error("sections must not be leaf keys")
	}
	if len(envKeys(nil)) != 0 || len(envKeys(42)) != 0 {
		t.Error("non-struct targets have no keys")
	}
}

func TestLoadConfigUnknownVariableIgnored(t *testing.T) {
	environ := func() []string {
		return []string{"MEMRUN_LAUNCHER_RETRY_MAX_ATTEMPTS=9", "MEMRUN_NOT_A_FIELD=1", "MEMRUN_=x"}
	}
	var cfg ServiceConfig
	if err := LoadConfig("memrun", &cfg, WithFileSystem(&mockFS{}), WithEnviron(environ)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Launcher.Retry.MaxAttempts != 9 {
		t.Errorf("expected 9 attempts, got %d", cfg.Launcher.Retry.MaxAttempts)
	}
}

func TestEnvPrefix(t *testing.T) {
	if got := envPrefix("my-tool"); got != "MY_TOOL_" {
		t.Errorf("expected MY_TOOL_, got %q", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithFileSystem(&mockFS{})(&lc)
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	WithEnvPrefix("X_")(&lc)
	if lc.FileSystem == nil || lc.ConfigFile != "/path/to/config.yml" || lc.EnvFile != "/path/to/.env" || lc.EnvPrefix != "X_" {
		t.Errorf("options not applied: %+v", lc)
	}
}
