// Package config loads the YAML configuration file and a sibling .env,
// following the teacher's config-loading style (YAML via
// gopkg.in/yaml.v3, secrets layered in from a .env via
// github.com/joho/godotenv).
package config

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type OAuthConfig struct {
	Issuer       string `yaml:"issuer"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

type Config struct {
	Port            int    `yaml:"port"`
	StorageDir      string `yaml:"storage-dir"`
	UpstreamBaseURL string `yaml:"upstream-base-url"`
	ProxyURL        string `yaml:"proxy-url"`
	TLSFingerprint  bool   `yaml:"tls-fingerprint"`

	OAuth OAuthConfig `yaml:"oauth"`

	RequestRetry   int  `yaml:"request-retry"`
	DisableCooling bool `yaml:"disable-cooling"`

	LoggingToFile      bool `yaml:"logging-to-file"`
	LogsMaxTotalSizeMB int  `yaml:"logs-max-total-size-mb"`
}

// Defaults mirrors the teacher's practice of always returning a usable
// Config even with an empty/missing file.
func Defaults() *Config {
	return &Config{
		Port:               1455,
		StorageDir:         "./data",
		UpstreamBaseURL:    "https://chatgpt.com/backend-api/codex",
		RequestRetry:       3,
		LogsMaxTotalSizeMB: 100,
	}
}

// Load reads path (YAML) over Defaults(), and loads a sibling .env if
// present. A missing config file is not an error: Defaults() alone is
// returned.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Debug("config: .env not loaded")
	}

	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
