package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the conventional name of a run's TOML config file.
const ConfigFileName = "rentl.toml"

// FindConfigFile walks up from startDir looking for rentl.toml, stopping at
// the filesystem root. Returns an empty path (and no error) if none is
// found.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("config: resolving %q: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile parses the TOML file at path into a Config and returns the
// decode metadata alongside it, so a caller can detect unknown keys via
// MetaData.Undecoded() the same way Validate does.
func LoadFromFile(path string) (*Config, toml.MetaData, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, md, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return &cfg, md, nil
}

// Validate reports every top-level config key present in the file but not
// present in the Config struct, using the metadata LoadFromFile returned.
// It never rejects a config outright; an external caller decides whether an
// unknown key is a hard error or a warning.
func Validate(meta toml.MetaData) []string {
	var unknown []string
	for _, key := range meta.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown
}
