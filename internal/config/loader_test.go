package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
	if cfg.Retry.Count != 2 {
		t.Errorf("Retry.Count = %d, want 2", cfg.Retry.Count)
	}
	if cfg.Retry.Delay != time.Second {
		t.Errorf("Retry.Delay = %v, want 1s", cfg.Retry.Delay)
	}
	if cfg.Collect.MaxParallel != 4 || cfg.Collect.MaxProcesses != 4 {
		t.Errorf("Collect parallelism = %d/%d, want 4/4", cfg.Collect.MaxParallel, cfg.Collect.MaxProcesses)
	}
	if cfg.Collect.FailFast {
		t.Error("Collect.FailFast = true, want false")
	}
	if cfg.Collect.Timeout != 0 {
		t.Errorf("Collect.Timeout = %v, want 0", cfg.Collect.Timeout)
	}
	if cfg.Collect.ControllerMarker != "controller" {
		t.Errorf("Collect.ControllerMarker = %q, want %q", cfg.Collect.ControllerMarker, "controller")
	}
	if cfg.Tools.Juju != "juju" || cfg.Tools.Kubectl != "kubectl" {
		t.Errorf("Tools = %+v, want juju/kubectl", cfg.Tools)
	}
	if cfg.Output.Level != -1 {
		t.Errorf("Output.Level = %d, want -1", cfg.Output.Level)
	}
	if cfg.Upload.Enabled() {
		t.Error("Upload.Enabled() = true, want false by default")
	}

	if err := NewValidator().Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("CRASHDUMP_LOG_LEVEL", "debug")
	t.Setenv("CRASHDUMP_RETRY_COUNT", "5")
	t.Setenv("CRASHDUMP_RETRY_DELAY", "250ms")
	t.Setenv("CRASHDUMP_COLLECT_FAIL_FAST", "true")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Retry.Count != 5 {
		t.Errorf("Retry.Count = %d, want 5", cfg.Retry.Count)
	}
	if cfg.Retry.Delay != 250*time.Millisecond {
		t.Errorf("Retry.Delay = %v, want 250ms", cfg.Retry.Delay)
	}
	if !cfg.Collect.FailFast {
		t.Error("Collect.FailFast = false, want true")
	}
}

func TestLoader_ConfigFileOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "crashdump.yaml")
	content := `
log:
  format: json
collect:
  max_parallel: 1
  timeout: 10m
tools:
  juju: /snap/bin/juju
upload:
  endpoint: minio.local:9000
  bucket: dumps
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loader.ConfigFile() != configPath {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), configPath)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Collect.MaxParallel != 1 {
		t.Errorf("Collect.MaxParallel = %d, want 1", cfg.Collect.MaxParallel)
	}
	if cfg.Collect.Timeout != 10*time.Minute {
		t.Errorf("Collect.Timeout = %v, want 10m", cfg.Collect.Timeout)
	}
	if cfg.Tools.Juju != "/snap/bin/juju" {
		t.Errorf("Tools.Juju = %q", cfg.Tools.Juju)
	}
	if cfg.Tools.Kubectl != "kubectl" {
		t.Errorf("Tools.Kubectl = %q, want default", cfg.Tools.Kubectl)
	}
	if !cfg.Upload.Enabled() || cfg.Upload.Bucket != "dumps" || !cfg.Upload.UseSSL {
		t.Errorf("Upload = %+v", cfg.Upload)
	}
}

func TestLoader_Precedence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "crashdump.yaml")
	if err := os.WriteFile(configPath, []byte("retry:\n  count: 3\nlog:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	t.Setenv("CRASHDUMP_RETRY_COUNT", "4")

	loader := NewLoader().WithConfigFile(configPath)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--log-level", "error"}); err != nil {
		t.Fatal(err)
	}
	if err := loader.Viper().BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		t.Fatal(err)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Retry.Count != 4 {
		t.Errorf("Retry.Count = %d, want 4 (env should override file)", cfg.Retry.Count)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q (flag should override file)", cfg.Log.Level, "error")
	}
}

func TestLoader_InvalidConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("log:\n  level: [invalid yaml\n"), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := NewLoader().WithConfigFile(configPath).Load(); err == nil {
		t.Error("Load() should fail for invalid YAML")
	}
}

func TestLoader_MissingExplicitConfigFile(t *testing.T) {
	_, err := NewLoader().WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err == nil {
		t.Error("Load() should fail when an explicit config file is missing")
	}
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("DUMPTEST_TOOLS_KUBECTL", "/usr/local/bin/kubectl")

	cfg, err := NewLoader().WithEnvPrefix("DUMPTEST").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tools.Kubectl != "/usr/local/bin/kubectl" {
		t.Errorf("Tools.Kubectl = %q", cfg.Tools.Kubectl)
	}
}

func TestDefaultConfigYAML_MatchesLoaderDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	fromFile, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defaults, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *fromFile != *defaults {
		t.Errorf("default file differs from loader defaults:\nfile:     %+v\ndefaults: %+v", *fromFile, *defaults)
	}
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteDefault(path, false); err == nil {
		t.Fatal("WriteDefault() should refuse to overwrite")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "log:\n  level: debug\n" {
		t.Errorf("existing file was modified: %q", data)
	}

	if err := WriteDefault(path, true); err != nil {
		t.Fatalf("WriteDefault(force) error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != DefaultConfigYAML {
		t.Error("forced write did not replace the file")
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "."+DefaultConfigFile+".*"))
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}
