// Package prefs persists the last-used compression settings so the next
// session's prompts default to them.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Preferences mirrors the prompt defaults. Stored as TOML under the user
// config directory.
type Preferences struct {
	TargetSizeMB     float64 `toml:"target_size_mb"`
	ResolutionHeight int     `toml:"resolution_height"`
	RemoveAudio      bool    `toml:"remove_audio"`
	Format           string  `toml:"format"`
	TwoPass          bool    `toml:"two_pass"`
	GIFFrameRate     int     `toml:"gif_frame_rate"`
}

func Default() Preferences {
	return Preferences{
		TargetSizeMB:     8,
		ResolutionHeight: 720,
		RemoveAudio:      false,
		Format:           "mp4",
		TwoPass:          true,
		GIFFrameRate:     15,
	}
}

// FilePath returns the on-disk location of the preferences file.
func FilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "clipsqueeze", "prefs.toml"), nil
}

// Load reads the saved preferences. A missing file yields the defaults
// with no error; a corrupt file yields the defaults and the parse error.
func Load() (Preferences, error) {
	path, err := FilePath()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(path)
}

func LoadFrom(path string) (Preferences, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), err
	}
	p := Default()
	if err := toml.Unmarshal(data, &p); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// Save writes the preferences, creating the config directory if needed.
func Save(p Preferences) error {
	path, err := FilePath()
	if err != nil {
		return err
	}
	return SaveTo(path, p)
}

func SaveTo(path string, p Preferences) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
