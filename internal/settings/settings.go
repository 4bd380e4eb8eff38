// Package settings persists the small per-device key-value state of the
// CLI: the cached user id, the tutorial flag and the service address.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the YAML document stored on disk.
type Settings struct {
	UserID            string `yaml:"user_id,omitempty"`
	TutorialCompleted bool   `yaml:"tutorial_completed"`
	APIURL            string `yaml:"api_url,omitempty"`
}

// DefaultPath is settings.yaml under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "remind", "settings.yaml"), nil
}

// Load reads path. A missing file yields zero settings.
func Load(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path, replacing the previous file atomically.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Update loads path, applies fn and saves the result.
func Update(path string, fn func(*Settings)) (Settings, error) {
	s, err := Load(path)
	if err != nil {
		return s, err
	}
	fn(&s)
	return s, Save(path, s)
}
