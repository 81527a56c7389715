package cmd

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL    string        `yaml:"api_url"`
	DownloadsRoot string        `yaml:"downloads_root"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	ProxyURL      string        `yaml:"proxy"`
}

func defaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DownloadsRoot: filepath.Join(home, ".local", "anivault", "downloads"),
		Timeout:       3 * time.Minute,
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "anivault", "config.yaml")
}

// loadConfig merges the YAML config file (if present) over the defaults.
// Flags take precedence later.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = defaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.DownloadsRoot == "" {
		cfg.DownloadsRoot = defaultConfig().DownloadsRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultConfig().Timeout
	}
	return cfg, nil
}
