package config

import (
	stderrors "errors"
	"os"

	"github.com/tokenkeeper/tokenkeeper/internal/errors"
	"gopkg.in/yaml.v3"
)

// Load reads, parses and validates the configuration at path. Environment
// variables referenced as ${VAR} in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrConfigNotFound{Path: path}
		}
		return nil, &errors.ErrFileRead{Path: path, Err: err}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: path, Err: err}
	}

	return Parse(substituteEnvVars(content))
}

// LoadOrDefault loads the configuration at path, or returns the built-in
// defaults when path is empty or the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if err != nil {
		var notFound *errors.ErrConfigNotFound
		if stderrors.As(err, &notFound) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration from a byte slice.
func Parse(data []byte) (*Config, error) {
	config := Default()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	if err := config.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return config, nil
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
