// Package settings is the small key/value configuration that survives
// process restarts: the manual offline override, the app mode, the
// receipt header and the license state. It is read once at startup and
// written on explicit toggles.
package settings

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Settings is everything persisted between runs.
type Settings struct {
	OfflineMode bool   `json:"offline_mode"`
	AppMode     string `json:"app_mode"`

	// Receipt header
	StoreName string `json:"store_name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	VATNumber string `json:"vat_number"`

	// License activation
	LicenseKey     string    `json:"license_key,omitempty"`
	LicenseExpires time.Time `json:"license_expires,omitempty"`
	LicenseActive  bool      `json:"license_active"`
}

func defaults() Settings {
	return Settings{
		OfflineMode: false,
		AppMode:     "online",
		StoreName:   "PayeSmart",
	}
}

// File owns the on-disk settings and serializes access to them.
type File struct {
	path string

	mu      sync.Mutex
	current Settings
}

// Load reads the settings file, falling back to defaults when it does
// not exist yet.
func Load(path string) (*File, error) {
	f := &File{path: path, current: defaults()}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &f.current); err != nil {
		return nil, err
	}
	return f, nil
}

// Get returns a copy of the current settings.
func (f *File) Get() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Set mutates the settings and persists them before returning.
func (f *File) Set(mutate func(*Settings)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.current
	mutate(&next)
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	// Write-then-rename so a crash never leaves a truncated file.
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return err
	}
	f.current = next
	return nil
}
