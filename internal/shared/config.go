package shared

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Secret backend identifiers accepted by [SecretsConfig.Backend].
const (
	BackendParameterStore = "ssm"
	BackendSecretsManager = "secretsmanager"
	BackendSQLite         = "sqlite"
	BackendRedis          = "redis"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Playlists PlaylistsConfig `toml:"playlists"`
	Secrets   SecretsConfig   `toml:"secrets"`
	Spotify   SpotifyConfig   `toml:"spotify"`
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
}

// PlaylistsConfig describes the rolling playlists and their chunking.
type PlaylistsConfig struct {
	Names       []string `toml:"names"`
	Count       int      `toml:"count"`
	Size        int      `toml:"size"`
	Description string   `toml:"description"`
}

// SecretsConfig selects the credential store and the record names inside it.
type SecretsConfig struct {
	Backend           string      `toml:"backend"`
	CredentialsName   string      `toml:"credentials_name"`
	TokenName         string      `toml:"token_name"`
	PlaylistCacheName string      `toml:"playlist_cache_name"`
	Region            string      `toml:"region"`
	Redis             RedisConfig `toml:"redis"`
}

// RedisConfig contains connection settings for the redis secret backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// SpotifyConfig contains Spotify Web API client settings.
type SpotifyConfig struct {
	RedirectURI   string   `toml:"redirect_uri"`
	BaseURL       string   `toml:"base_url"`
	Timeout       Duration `toml:"timeout"`
	MaxRetries    int      `toml:"max_retries"`
	MaxRetryDelay Duration `toml:"max_retry_delay"`
	RateLimit     float64  `toml:"rate_limit"`
	RefreshMargin Duration `toml:"refresh_margin"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
	JSON  bool   `toml:"json"`
}

// Duration wraps [time.Duration] so TOML values like "15s" decode.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
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
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv reads a .env file into the process environment without overriding variables that are already set.
// A missing file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides configuration values from environment variables returned by lookup.
// Pass [os.LookupEnv] in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := get("PLAYLIST_NAMES"); ok {
		var names []string
		if err := json.Unmarshal([]byte(v), &names); err != nil {
			return fmt.Errorf("%w: PLAYLIST_NAMES must be a JSON array of strings: %v", ErrInvalidConfig, err)
		}
		c.Playlists.Names = names
	}
	if v, ok := get("PLAYLIST_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PLAYLIST_COUNT %q", ErrInvalidConfig, v)
		}
		c.Playlists.Count = n
	}
	if v, ok := get("PLAYLIST_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PLAYLIST_LENGTH %q", ErrInvalidConfig, v)
		}
		c.Playlists.Size = n
	}
	if v, ok := get("PLAYLIST_DESCRIPTION"); ok {
		c.Playlists.Description = v
	}
	if v, ok := get("SECRETS_BACKEND"); ok {
		c.Secrets.Backend = v
	}
	if v, ok := get("OAUTH_NAME", "OAUTH_SECRET"); ok {
		c.Secrets.CredentialsName = v
	}
	if v, ok := get("TOKEN_NAME", "TOKEN_SECRET"); ok {
		c.Secrets.TokenName = v
	}
	if v, ok := get("PLAYLIST_ID_NAME"); ok {
		c.Secrets.PlaylistCacheName = v
	}
	if v, ok := get("AWS_REGION"); ok {
		c.Secrets.Region = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Secrets.Redis.Addr = v
	}
	if v, ok := get("REDIS_PASSWORD"); ok {
		c.Secrets.Redis.Password = v
	}
	if v, ok := get("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: REDIS_DB %q", ErrInvalidConfig, v)
		}
		c.Secrets.Redis.DB = n
	}
	if v, ok := get("REDIRECT_URI"); ok {
		c.Spotify.RedirectURI = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FILE"); ok {
		c.Log.File = v
	}
	if v, ok := get("DATABASE_PATH"); ok {
		c.Database.Path = v
	}

	return nil
}

// ChunkCount returns the configured playlist count, defaulting to the number of names.
func (c *Config) ChunkCount() int {
	if c.Playlists.Count == 0 {
		return len(c.Playlists.Names)
	}
	return c.Playlists.Count
}

// NormalizeBackend maps backend aliases onto the canonical identifiers.
func NormalizeBackend(backend string) string {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "ps", "ssm", "parameterstore", "parameter-store":
		return BackendParameterStore
	case "sm", "secretsmanager", "secrets-manager":
		return BackendSecretsManager
	case "sqlite", "sqlite3":
		return BackendSQLite
	case "redis":
		return BackendRedis
	}
	return ""
}

// Validate checks the configuration before any network call is made.
func (c *Config) Validate() error {
	if len(c.Playlists.Names) == 0 {
		return fmt.Errorf("%w: at least one playlist name is required", ErrInvalidConfig)
	}
	for i, name := range c.Playlists.Names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: playlist name %d is empty", ErrInvalidConfig, i)
		}
	}
	if n := c.ChunkCount(); n != len(c.Playlists.Names) {
		return fmt.Errorf("%w: playlist count %d does not match %d names", ErrInvalidConfig, n, len(c.Playlists.Names))
	}
	if c.Playlists.Size <= 0 {
		return fmt.Errorf("%w: playlist size must be positive, got %d", ErrInvalidConfig, c.Playlists.Size)
	}
	if NormalizeBackend(c.Secrets.Backend) == "" {
		return fmt.Errorf("%w: unknown secrets backend %q", ErrInvalidConfig, c.Secrets.Backend)
	}
	if c.Secrets.CredentialsName == "" || c.Secrets.TokenName == "" || c.Secrets.PlaylistCacheName == "" {
		return fmt.Errorf("%w: secret record names must be set", ErrInvalidConfig)
	}
	return nil
}
