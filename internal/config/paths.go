package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// baseConfigDir returns the OS config-home directory fluidzero nests under,
// honoring XDG_CONFIG_HOME per spec.md §6 and falling back to the
// platform's conventional location. Exits the process if no home directory
// can be determined, matching the teacher's paths.go fail-fast behavior —
// every caller below depends on a usable path.
func baseConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("APPDATA"); dir != "" {
			return dir
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine home directory: %v\n", err)
		fmt.Fprintf(os.Stderr, "Set XDG_CONFIG_HOME to override.\n")
		os.Exit(1)
	}
	if runtime.GOOS == "windows" {
		return home
	}
	return filepath.Join(home, ".config")
}

// GetConfigDir returns `<config_home>/fluidzero`, the directory holding
// both the global config.toml and credentials.json. A FZ_CONFIG_DIR
// override is honored first so tests can point it at a temporary
// directory, per the Design Notes' "inject the base path as a dependency"
// guidance.
func GetConfigDir() string {
	if dir := os.Getenv("FZ_CONFIG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(baseConfigDir(), "fluidzero")
}

// GetCredentialsFile returns the path to the credentials file.
func GetCredentialsFile() string {
	return filepath.Join(GetConfigDir(), "credentials.json")
}

// GetConfigPath returns the path to the global config file.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.toml")
}

// GetLocalConfigPath returns the path to the working-directory-local
// config file, the most specific file-based layer in the resolution order.
func GetLocalConfigPath() string {
	return ".fluidzero.toml"
}

// ConfigExists returns true if the global config file exists.
func ConfigExists() bool {
	_, err := os.Stat(GetConfigPath())
	return err == nil
}

// EnsureDirectories creates the fluidzero config directory.
func EnsureDirectories() error {
	return os.MkdirAll(GetConfigDir(), 0700)
}
