// Package config loads the service configuration: built-in defaults,
// overlaid by an optional courtbook.yaml found by walking up from the
// working directory, overlaid by COURTBOOK_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const fileName = "courtbook.yaml"

type Config struct {
	// TableName is the DynamoDB table holding every item.
	TableName string `yaml:"tableName" envconfig:"TABLE_NAME"`
	// Region is the AWS region; empty defers to the ambient AWS config.
	Region string `yaml:"region" envconfig:"REGION"`
	// DataDir is the BadgerDB directory when running on the local
	// store; empty means in-memory.
	DataDir string `yaml:"dataDir" envconfig:"DATA_DIR"`

	// MaxAttributes caps the attributes per item.
	MaxAttributes int `yaml:"maxAttributes" envconfig:"MAX_ATTRIBUTES"`
	// MaxExclusions caps the excluded dates per rule.
	MaxExclusions int `yaml:"maxExclusions" envconfig:"MAX_EXCLUSIONS"`
	// RetryAttempts bounds CAS retries per operation.
	RetryAttempts int `yaml:"retryAttempts" envconfig:"RETRY_ATTEMPTS"`
	// ApplyDelay spaces out writes during rule application.
	ApplyDelay time.Duration `yaml:"applyDelay" envconfig:"APPLY_DELAY"`
	// Timezone names the location whose calendar defines "today".
	Timezone string `yaml:"timezone" envconfig:"TIMEZONE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TableName:     "courtbook",
		MaxAttributes: 250,
		MaxExclusions: 30,
		RetryAttempts: 5,
		ApplyDelay:    200 * time.Millisecond,
		Timezone:      "Europe/London",
	}
}

// Load resolves the effective configuration. Defaults are applied
// first, so an absent file or variable leaves the default in place.
func Load() (Config, error) {
	cfg := Default()
	if path := findConfigFile(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process("courtbook", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// findConfigFile searches for courtbook.yaml walking up from the
// current directory.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, fileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
