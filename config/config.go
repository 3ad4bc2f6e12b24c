// Package config loads ggbackup settings from a YAML file, GGBACKUP_* environment
// variables and defaults, in that order of precedence (env wins over file).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting ggbackup reads at startup.
type Config struct {
	// ClientID is the OAuth client identifier of a Google Cloud "Web application" client
	// whose authorized redirect URIs include RedirectURL.
	ClientID    string `mapstructure:"client_id"`
	RedirectURL string `mapstructure:"redirect_url"`

	FolderName string `mapstructure:"folder_name"`
	Locale     string `mapstructure:"locale"`

	DBPath    string `mapstructure:"db_path"`
	TokenPath string `mapstructure:"token_path"`

	AuthTimeout        time.Duration `mapstructure:"auth_timeout"`
	AutoBackupInterval time.Duration `mapstructure:"auto_backup_interval"`

	// Endpoints default to Google's; they are only set to reach another server.
	DriveEndpoint     string `mapstructure:"drive_endpoint"`
	TokenInfoEndpoint string `mapstructure:"tokeninfo_endpoint"`
}

// Defaults.
const (
	DefaultRedirectURL = "http://localhost:8080/"
	DefaultFolderName  = "Financeiro GG Backups"
	DefaultLocale      = "pt-BR"
	EnvPrefix          = "GGBACKUP"
)

// Dir returns the directory holding ggbackup's config, token and database.
func Dir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "ggbackup"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func newViper(path string) (*viper.Viper, error) {
	dir := filepath.Dir(path)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("client_id", "")
	v.SetDefault("redirect_url", DefaultRedirectURL)
	v.SetDefault("folder_name", DefaultFolderName)
	v.SetDefault("locale", DefaultLocale)
	v.SetDefault("db_path", filepath.Join(dir, "ledger.db"))
	v.SetDefault("token_path", filepath.Join(dir, "token.json"))
	v.SetDefault("auth_timeout", 5*time.Minute)
	v.SetDefault("auto_backup_interval", time.Hour)
	v.SetDefault("drive_endpoint", "")
	v.SetDefault("tokeninfo_endpoint", "")

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}
	return v, nil
}

// Load reads the config file at path (a missing file is not an error) and applies
// environment overrides and defaults. Relative paths default next to the config file.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// SetClientID stores the OAuth client identifier in the config file at path, keeping the
// other settings it already holds.
func SetClientID(path, clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client id must not be empty")
	}
	// Only what the file already holds is written back: no defaults, no environment.
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.Set("client_id", clientID)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
