package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the resolved requirements file relative to the
// project root. Producing it (cascading user/project/local layers) is
// the setup tooling's job, not this module's.
const DefaultFileName = ".gatekeep/requirements.yaml"

// Load reads and validates a resolved configuration file. A missing
// file is not an error: it yields an empty configuration, meaning no
// requirements are enforced.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Version: 1, Requirements: map[string]*Requirement{}}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Requirements == nil {
		cfg.Requirements = map[string]*Requirement{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadForProject loads the resolved configuration for a project root.
func LoadForProject(projectDir string) (*Config, error) {
	return Load(filepath.Join(projectDir, DefaultFileName))
}
