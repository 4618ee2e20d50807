package config

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func userConfigFilePath(cfg *Config) string {
	configDir := os.Getenv("CONFIG_DIRECTORY")
	if configDir == "" {
		configDir = cfg.GalleryDataDir
	}

	return filepath.Join(configDir, "config.json")
}

// applyUserConfig layers settings from the JSON config file over the
// defaults. A missing file is fine; the defaults stand.
func applyUserConfig(cfg *Config, configFilePath string) error {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.WithStack(err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// SaveUserConfigFile writes the current settings back to the config file.
func SaveUserConfigFile(cfg *Config, configFilePath string) error {
	// Ensure config directory exists.
	if err := os.MkdirAll(filepath.Dir(configFilePath), 0755); err != nil {
		return errors.WithStack(err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	err = os.WriteFile(configFilePath, data, 0644) //nolint:gosec
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}
