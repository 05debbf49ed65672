// Package config resolves fz's layered configuration: hardcoded defaults,
// overridden by the global config.toml, overridden by the working
// directory's .fluidzero.toml, overridden by environment variables — CLI
// flag overrides are applied by the caller on top of the *Config Load()
// returns, per spec.md §6.
//
// Adapted from the teacher's internal/config/config.go: kept viper, the
// env-var-override pattern, the config-file-permission warning, and the
// atomic write-via-temp-file save path; switched the file format from
// YAML to TOML and the single-file load into a two-layer
// ReadInConfig+MergeInConfig merge, and replaced the field set with
// spec.md §6's keys.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Defaults, per spec.md §6/original_source/constants.py.
const (
	DefaultAPIURL           = "https://api-staging.fluidzero.ai"
	DefaultAuthkitSubdomain = "euphoric-grape-60-staging"
	DefaultOAuthClientID    = "client_01KGA8ECKMDH8GWPZR00QGPTBZ"

	DefaultUploadConcurrency   = 5
	DefaultUploadRetryAttempts = 3

	DefaultRunPollInterval = 2
	DefaultRunTimeout      = 600
)

// Config is the resolved configuration for one CLI invocation.
type Config struct {
	Defaults DefaultsConfig `mapstructure:"defaults"`

	AuthkitSubdomain string `mapstructure:"authkit_subdomain"`
	OAuthClientID    string `mapstructure:"oauth_client_id"`

	Upload UploadConfig `mapstructure:"upload"`
	Runs   RunsConfig   `mapstructure:"runs"`
}

// DefaultsConfig is the [defaults] table.
type DefaultsConfig struct {
	APIURL  string `mapstructure:"api_url"`
	Project string `mapstructure:"project"`
	Output  string `mapstructure:"output"`
}

// UploadConfig is the [upload] table.
type UploadConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	RetryAttempts int `mapstructure:"retry_attempts"`
}

// RunsConfig is the [runs] table.
type RunsConfig struct {
	PollInterval int `mapstructure:"poll_interval"`
	Timeout      int `mapstructure:"timeout"`
}

// ValidOutputFormats lists the output formats the Config Resolver will
// accept for `defaults.output` / FZ_OUTPUT / --output.
var ValidOutputFormats = []string{"table", "json", "jsonl", "csv"}

// DefaultConfig returns configuration with the hardcoded defaults —
// the least-specific layer in the resolution order.
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			APIURL: DefaultAPIURL,
			Output: "table",
		},
		AuthkitSubdomain: DefaultAuthkitSubdomain,
		OAuthClientID:    DefaultOAuthClientID,
		Upload: UploadConfig{
			Concurrency:   DefaultUploadConcurrency,
			RetryAttempts: DefaultUploadRetryAttempts,
		},
		Runs: RunsConfig{
			PollInterval: DefaultRunPollInterval,
			Timeout:      DefaultRunTimeout,
		},
	}
}

// Load resolves configuration: defaults ← global config.toml ← local
// .fluidzero.toml ← environment variables. CLI flag overrides are the
// caller's responsibility (applied on the returned *Config), since flag
// parsing lives in cmd/fz, out of the Config Resolver's scope.
func Load() (*Config, error) {
	return load(GetConfigPath())
}

// LoadWithFile resolves configuration the same way Load does, but reads
// the global layer from an explicit path instead of GetConfigPath() —
// the `--config` flag's override.
func LoadWithFile(path string) (*Config, error) {
	return load(path)
}

func load(globalConfigPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("toml")
	applyDefaults(v, cfg)

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil {
		if !isConfigFileNotFound(err) {
			return nil, fmt.Errorf("error reading global config: %w", err)
		}
	} else {
		warnIfPermissive(v.ConfigFileUsed())
	}

	if _, err := os.Stat(GetLocalConfigPath()); err == nil {
		v.SetConfigFile(GetLocalConfigPath())
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading local config: %w", err)
		}
	}

	v.SetEnvPrefix("FZ")
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("defaults.api_url", cfg.Defaults.APIURL)
	v.SetDefault("defaults.output", cfg.Defaults.Output)
	v.SetDefault("authkit_subdomain", cfg.AuthkitSubdomain)
	v.SetDefault("oauth_client_id", cfg.OAuthClientID)
	v.SetDefault("upload.concurrency", cfg.Upload.Concurrency)
	v.SetDefault("upload.retry_attempts", cfg.Upload.RetryAttempts)
	v.SetDefault("runs.poll_interval", cfg.Runs.PollInterval)
	v.SetDefault("runs.timeout", cfg.Runs.Timeout)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("defaults.api_url", "FZ_API_URL")
	_ = v.BindEnv("defaults.project", "FZ_PROJECT_ID")
	_ = v.BindEnv("defaults.output", "FZ_OUTPUT")
	_ = v.BindEnv("authkit_subdomain", "FZ_AUTHKIT_SUBDOMAIN")
	_ = v.BindEnv("oauth_client_id", "FZ_OAUTH_CLIENT_ID")
}

// applyEnvOverrides re-applies the env vars viper's automatic binding
// could miss due to merge ordering (BindEnv wins over file values, but
// only when the key was explicitly set — this makes the precedence
// unambiguous for the small, fixed key set spec.md §6 names).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FZ_API_URL"); v != "" {
		cfg.Defaults.APIURL = v
	}
	if v := os.Getenv("FZ_PROJECT_ID"); v != "" {
		cfg.Defaults.Project = v
	}
	if v := os.Getenv("FZ_OUTPUT"); v != "" {
		cfg.Defaults.Output = v
	}
	if v := os.Getenv("FZ_AUTHKIT_SUBDOMAIN"); v != "" {
		cfg.AuthkitSubdomain = v
	}
	if v := os.Getenv("FZ_OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuthClientID = v
	}
}

func isConfigFileNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		return true
	}
	// viper wraps a plain os.IsNotExist for an explicit SetConfigFile
	// path rather than returning ConfigFileNotFoundError.
	return os.IsNotExist(err)
}

func warnIfPermissive(path string) {
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: config file %s has overly permissive permissions %o; consider chmod 600\n", path, info.Mode().Perm())
	}
}

// M2MCredentialsFromEnv returns the client id/secret pair the HTTP Engine
// uses for machine-to-machine auth, and whether both are set. These are
// read directly from the environment rather than through viper/Config,
// since they feed Auth Flows directly and are never persisted to a
// config file — mirroring the teacher's own mixed pattern of reading
// some env vars outside the config layer.
func M2MCredentialsFromEnv() (clientID, clientSecret string, ok bool) {
	clientID = os.Getenv("FZ_CLIENT_ID")
	clientSecret = os.Getenv("FZ_CLIENT_SECRET")
	return clientID, clientSecret, clientID != "" && clientSecret != ""
}

// SaveConfig writes cfg to the global config.toml, preserving any
// existing keys it doesn't know about. Mirrors the teacher's
// write-to-temp-then-rename pattern (safe for a config file, unlike
// credentials.json which the spec mandates write-then-chmod for).
func SaveConfig(cfg *Config) error {
	if err := EnsureDirectories(); err != nil {
		return err
	}

	configPath := GetConfigPath()
	v := viper.New()
	v.SetConfigType("toml")

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			v = viper.New()
			v.SetConfigType("toml")
		}
	}

	v.Set("defaults.api_url", cfg.Defaults.APIURL)
	v.Set("defaults.project", cfg.Defaults.Project)
	v.Set("defaults.output", cfg.Defaults.Output)
	v.Set("authkit_subdomain", cfg.AuthkitSubdomain)
	v.Set("oauth_client_id", cfg.OAuthClientID)
	v.Set("upload.concurrency", cfg.Upload.Concurrency)
	v.Set("upload.retry_attempts", cfg.Upload.RetryAttempts)
	v.Set("runs.poll_interval", cfg.Runs.PollInterval)
	v.Set("runs.timeout", cfg.Runs.Timeout)

	tmpPath := configPath + ".tmp"
	if err := v.WriteConfigAs(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install config: %w", err)
	}
	return nil
}

// PrintSample writes a sample config.toml to stdout.
func PrintSample() {
	sample := fmt.Sprintf(`# fluidzero CLI configuration
# ~/.config/fluidzero/config.toml

authkit_subdomain = %q
oauth_client_id = %q

[defaults]
api_url = %q
# project = "proj_..."
output = "table"

[upload]
concurrency = %d
retry_attempts = %d

[runs]
poll_interval = %d
timeout = %d
`, DefaultAuthkitSubdomain, DefaultOAuthClientID, DefaultAPIURL,
		DefaultUploadConcurrency, DefaultUploadRetryAttempts,
		DefaultRunPollInterval, DefaultRunTimeout)
	fmt.Print(sample)
}
