package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values from the TOML file.
const (
	EnvBaseURL      = "STORYDESK_API_BASE_URL"
	EnvDatabasePath = "STORYDESK_DATABASE_PATH"
	EnvAdminRole    = "STORYDESK_ADMIN_ROLE"
	EnvRateLimit    = "STORYDESK_API_RATE_LIMIT"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Auth     AuthConfig     `toml:"auth"`
	Device   DeviceConfig   `toml:"device"`
	Database DatabaseConfig `toml:"database"`
	Stories  StoriesConfig  `toml:"stories"`
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second, 0 disables pacing
}

// AuthConfig contains login policy settings.
type AuthConfig struct {
	AdminRole string `toml:"admin_role"`
}

// DeviceConfig controls what the login payload reports about this machine.
type DeviceConfig struct {
	AppVersion        string `toml:"app_version"`
	IPLookupURL       string `toml:"ip_lookup_url"`
	GeoLookupURL      string `toml:"geo_lookup_url"`
	GeoTimeoutSeconds int    `toml:"geo_timeout_seconds"`
}

// DatabaseConfig contains local database settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StoriesConfig contains dashboard listing and editor settings.
type StoriesConfig struct {
	PageSize    int      `toml:"page_size"`
	AllowedTags []string `toml:"allowed_tags"`
}

// Timeout returns the HTTP client timeout.
func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GeoTimeout returns the bounded wait for a geolocation lookup.
func (c DeviceConfig) GeoTimeout() time.Duration {
	if c.GeoTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.GeoTimeoutSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the config.
//
// When envFiles are given they are loaded first with [godotenv.Load]; variables already present in the
// process environment win over values from the files.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) > 0 {
		existing := make([]string, 0, len(envFiles))
		for _, f := range envFiles {
			if _, err := os.Stat(f); err == nil {
				existing = append(existing, f)
			}
		}
		if len(existing) > 0 {
			if err := godotenv.Load(existing...); err != nil {
				return fmt.Errorf("failed to load env files: %w", err)
			}
		}
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvAdminRole); v != "" {
		c.Auth.AdminRole = v
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvRateLimit, v)
		}
		c.API.RateLimit = limit
	}

	return nil
}
