// Package credstore implements the Credential Store (spec.md §4.1): a
// single JSON credentials record at a fixed path, written with
// owner-only permissions. Corruption and I/O failures on load are always
// treated as "absent" — the store never raises for them.
//
// Grounded on the path-resolution shape of the teacher's
// internal/config/paths.go (XDG/home-dir fallback, injectable base path),
// generalized to the plain-JSON format spec.md §3/§4.1 requires in place
// of the teacher's OS-keychain storage — see DESIGN.md for why the
// keychain mechanism was dropped.
package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fluidzero/fz-cli/internal/config"
	"github.com/fluidzero/fz-cli/pkg/models"
)

// mu serializes save/delete against concurrent goroutines within this
// process (e.g. the upload and report pools both touching auth). It does
// not protect against other processes racing the same file — spec.md §5
// explicitly tolerates that ("last writer wins... tokens are idempotent").
var mu sync.Mutex

// Load returns the stored credentials, or (nil, nil) if the file is
// absent, unreadable, not a JSON object, or lacks an access_token field.
// It never returns a non-nil error for I/O or parse failures.
func Load() (*models.Credentials, error) {
	mu.Lock()
	defer mu.Unlock()
	return loadLocked()
}

func loadLocked() (*models.Credentials, error) {
	data, err := os.ReadFile(config.GetCredentialsFile())
	if err != nil {
		return nil, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil
	}
	if _, ok := raw["access_token"]; !ok {
		return nil, nil
	}

	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, nil
	}
	return &creds, nil
}

// Save writes creds as indented JSON with a trailing newline, creating
// the parent directory if needed, then restricts the file to owner
// read/write (0600). Any prior file is overwritten.
func Save(creds *models.Credentials) error {
	mu.Lock()
	defer mu.Unlock()

	path := config.GetCredentialsFile()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}
	// WriteFile honors the mode only on create; make sure a pre-existing
	// file with looser permissions is tightened too (write-then-chmod).
	return os.Chmod(path, 0600)
}

// Delete removes the credentials file. It returns whether a file existed.
func Delete() (bool, error) {
	mu.Lock()
	defer mu.Unlock()

	path := config.GetCredentialsFile()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
