package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()
	if dir == "" {
		t.Error("GetConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("GetConfigDir returned relative path: %s", dir)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FZ_CONFIG_DIR", tmpDir)
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Defaults.APIURL != DefaultAPIURL {
		t.Errorf("expected default api_url, got %q", cfg.Defaults.APIURL)
	}
	if cfg.Upload.Concurrency != DefaultUploadConcurrency {
		t.Errorf("expected default upload concurrency, got %d", cfg.Upload.Concurrency)
	}
	if cfg.Runs.Timeout != DefaultRunTimeout {
		t.Errorf("expected default run timeout, got %d", cfg.Runs.Timeout)
	}
}

func TestLoadConfig_GlobalFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FZ_CONFIG_DIR", tmpDir)
	chdirTemp(t)

	globalToml := `
[defaults]
api_url = "https://api.example.com"
output = "json"

[upload]
concurrency = 8
`
	if err := os.WriteFile(GetConfigPath(), []byte(globalToml), 0600); err != nil {
		t.Fatalf("failed to write global config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Defaults.APIURL != "https://api.example.com" {
		t.Errorf("expected overridden api_url, got %q", cfg.Defaults.APIURL)
	}
	if cfg.Defaults.Output != "json" {
		t.Errorf("expected overridden output, got %q", cfg.Defaults.Output)
	}
	if cfg.Upload.Concurrency != 8 {
		t.Errorf("expected overridden concurrency, got %d", cfg.Upload.Concurrency)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FZ_CONFIG_DIR", tmpDir)
	chdirTemp(t)

	globalToml := `
[defaults]
api_url = "https://from-file.example.com"
`
	if err := os.WriteFile(GetConfigPath(), []byte(globalToml), 0600); err != nil {
		t.Fatalf("failed to write global config: %v", err)
	}
	t.Setenv("FZ_API_URL", "https://from-env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Defaults.APIURL != "https://from-env.example.com" {
		t.Errorf("expected env to win over file, got %q", cfg.Defaults.APIURL)
	}
}

func TestLoadConfig_LocalOverridesGlobal(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FZ_CONFIG_DIR", tmpDir)

	workDir := t.TempDir()
	restore := chdir(t, workDir)
	defer restore()

	globalToml := "[defaults]\napi_url = \"https://global.example.com\"\n"
	if err := os.WriteFile(GetConfigPath(), []byte(globalToml), 0600); err != nil {
		t.Fatalf("failed to write global config: %v", err)
	}
	localToml := "[defaults]\napi_url = \"https://local.example.com\"\n"
	if err := os.WriteFile(GetLocalConfigPath(), []byte(localToml), 0600); err != nil {
		t.Fatalf("failed to write local config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Defaults.APIURL != "https://local.example.com" {
		t.Errorf("expected local config to win, got %q", cfg.Defaults.APIURL)
	}
}

func TestLoadConfigWithFile_UsesExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FZ_CONFIG_DIR", tmpDir)
	chdirTemp(t)

	explicitPath := filepath.Join(tmpDir, "custom.toml")
	explicitToml := "[defaults]\napi_url = \"https://explicit.example.com\"\n"
	if err := os.WriteFile(explicitPath, []byte(explicitToml), 0600); err != nil {
		t.Fatalf("failed to write explicit config: %v", err)
	}

	cfg, err := LoadWithFile(explicitPath)
	if err != nil {
		t.Fatalf("LoadWithFile() failed: %v", err)
	}
	if cfg.Defaults.APIURL != "https://explicit.example.com" {
		t.Errorf("expected explicit file to be read, got %q", cfg.Defaults.APIURL)
	}
}

func chdirTemp(t *testing.T) {
	t.Helper()
	restore := chdir(t, t.TempDir())
	t.Cleanup(restore)
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	return func() { os.Chdir(old) }
}
