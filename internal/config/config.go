package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultFileName   = ".releasectl.yaml"
	alternateFileName = ".releasectl.yml"

	// DefaultBucket is the staging bucket release artifacts are uploaded to.
	DefaultBucket = "salt-project-prod-salt-artifacts-staging"
)

// Config holds persistent defaults loaded from a config file.
type Config struct {
	Bucket            string           `yaml:"bucket"`
	Region            string           `yaml:"region"`
	Profile           string           `yaml:"profile"`
	Endpoint          string           `yaml:"endpoint"`
	ExcludeExtensions []string         `yaml:"exclude_extensions"`
	Timeout           string           `yaml:"timeout"`
	VirusTotal        VirusTotalConfig `yaml:"virustotal"`
}

// VirusTotalConfig holds scan relay defaults.
type VirusTotalConfig struct {
	URL          string `yaml:"url"`
	Concurrency  int    `yaml:"concurrency"`
	PollInterval string `yaml:"poll_interval"`
	PollTimeout  string `yaml:"poll_timeout"`
	MaxPolls     int    `yaml:"max_polls"`
}

// TimeoutDuration parses the Timeout field as a Go duration.
// Returns 0 if empty or unparseable.
func (c *Config) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// PollIntervalDuration parses virustotal.poll_interval; 0 if unset or invalid.
func (v *VirusTotalConfig) PollIntervalDuration() time.Duration {
	return parseDuration(v.PollInterval)
}

// PollTimeoutDuration parses virustotal.poll_timeout; 0 if unset or invalid.
func (v *VirusTotalConfig) PollTimeoutDuration() time.Duration {
	return parseDuration(v.PollTimeout)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Load searches for a config file in the given directory and the user's home
// directory. Returns a zero-value Config if no file is found.
func Load(dir string) (Config, error) {
	paths := searchPaths(dir)
	for _, p := range paths {
		cfg, found, err := loadPath(p)
		if err != nil {
			return Config{}, err
		}
		if found {
			return cfg, nil
		}
	}
	return Config{}, nil
}

// LoadFile reads an explicitly named config file. Unlike Load, a missing file is an error.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func searchPaths(dir string) []string {
	var paths []string
	if dir != "" {
		paths = append(paths, filepath.Join(dir, defaultFileName))
		paths = append(paths, filepath.Join(dir, alternateFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, defaultFileName))
		paths = append(paths, filepath.Join(home, alternateFileName))
	}
	return paths
}

func loadPath(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}
		return Config{}, false, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}
