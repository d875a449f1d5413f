// Package config loads the daemon configuration: a global YAML file
// under the user config directory, optionally overridden by a local
// .forgesync.yaml in the working directory. Forge tokens fall back to
// environment variables so they can stay out of the file entirely.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgesync/forgesync/internal/duration"
)

// GitHubConfig holds GitHub credentials and webhook settings.
type GitHubConfig struct {
	User          string   `yaml:"user,omitempty"`
	Token         string   `yaml:"token,omitempty"`
	WebhookSecret string   `yaml:"webhook_secret,omitempty"`
	HookNetworks  []string `yaml:"hook_networks,omitempty"`
}

// GitLabConfig holds GitLab credentials and webhook settings.
type GitLabConfig struct {
	URL           string   `yaml:"url,omitempty"`
	Token         string   `yaml:"token,omitempty"`
	WebhookSecret string   `yaml:"webhook_secret,omitempty"`
	Networks      []string `yaml:"networks,omitempty"`
}

// QueueConfig tunes the deferred push worker.
type QueueConfig struct {
	Interval   duration.Duration `yaml:"interval,omitempty"`
	MaxRetries int               `yaml:"max_retries,omitempty"`
}

// SyncConfig tunes the convergence engine.
type SyncConfig struct {
	ExcludeSlugs []string `yaml:"exclude_slugs,omitempty"`
	// ForceDiverged opts in to force-pushing over divergent history on
	// ordinary branch sync instead of notifying the operators.
	ForceDiverged bool `yaml:"force_diverged,omitempty"`
}

// SMTPConfig configures operator mail. When absent, failures are only
// logged.
type SMTPConfig struct {
	Addr     string   `yaml:"addr,omitempty"`
	From     string   `yaml:"from,omitempty"`
	To       []string `yaml:"to,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
}

// Config represents the application configuration.
type Config struct {
	Listen    string `yaml:"listen,omitempty"`
	MirrorDir string `yaml:"mirror_dir,omitempty"`
	DBPath    string `yaml:"db_path,omitempty"`

	GitHub GitHubConfig `yaml:"github,omitempty"`
	GitLab GitLabConfig `yaml:"gitlab,omitempty"`
	Queue  QueueConfig  `yaml:"queue,omitempty"`
	Sync   SyncConfig   `yaml:"sync,omitempty"`
	SMTP   *SMTPConfig  `yaml:"smtp,omitempty"`
}

// githubHookNetworks are GitHub's published hook source CIDR blocks.
var githubHookNetworks = []string{"185.199.108.0/22", "140.82.112.0/20"}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Listen:    ":8080",
		MirrorDir: filepath.Join(DefaultConfigDir(), "mirrors"),
		DBPath:    filepath.Join(DefaultConfigDir(), "forgesync.db"),
		GitHub: GitHubConfig{
			HookNetworks: githubHookNetworks,
		},
		Queue: QueueConfig{
			Interval:   duration.Duration(time.Minute),
			MaxRetries: 10,
		},
		Sync: SyncConfig{
			ExcludeSlugs: []string{"ros-release"},
		},
	}
}

// DefaultConfigDir returns the default config directory.
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".forgesync"
	}
	return filepath.Join(configDir, "forgesync")
}

// ConfigPath returns the path to the global config file.
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPath returns the path to the local config file in the
// current directory.
func LocalConfigPath() string {
	return ".forgesync.yaml"
}

// Load loads the configuration from disk: defaults, then the global
// file, then the local file on top, then environment fallbacks for
// the forge tokens.
func Load() (*Config, error) {
	cfg := Default()

	for _, path := range []string{ConfigPath(), LocalConfigPath()} {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults restores defaults that a config file set to zero and
// pulls tokens from the environment when the file omits them.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.MirrorDir == "" {
		c.MirrorDir = def.MirrorDir
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if len(c.GitHub.HookNetworks) == 0 {
		c.GitHub.HookNetworks = def.GitHub.HookNetworks
	}
	if c.Queue.Interval <= 0 {
		c.Queue.Interval = def.Queue.Interval
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = def.Queue.MaxRetries
	}
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if c.GitLab.Token == "" {
		c.GitLab.Token = os.Getenv("GITLAB_TOKEN")
	}
}

// Save writes the configuration to the global config file.
func (c *Config) Save() error {
	configDir := DefaultConfigDir()
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ToYAML renders the configuration for display.
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}
