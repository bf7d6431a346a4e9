package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		want := []string{"Recently Added", "Older Recently Added", "Even Older Recently Added"}
		if len(config.Playlists.Names) != len(want) {
			t.Fatalf("expected %d playlist names, got %d", len(want), len(config.Playlists.Names))
		}
		for i := range want {
			if config.Playlists.Names[i] != want[i] {
				t.Errorf("name %d = %q, want %q", i, config.Playlists.Names[i], want[i])
			}
		}

		if config.Playlists.Size != 200 {
			t.Errorf("expected playlist size 200, got %d", config.Playlists.Size)
		}
		if config.ChunkCount() != 3 {
			t.Errorf("expected chunk count 3, got %d", config.ChunkCount())
		}
		if config.Spotify.RedirectURI != "http://127.0.0.1:8000/callback" {
			t.Errorf("unexpected redirect uri %s", config.Spotify.RedirectURI)
		}
		if config.Spotify.Timeout.Duration != 15*time.Second {
			t.Errorf("expected 15s timeout, got %s", config.Spotify.Timeout)
		}
		if config.Spotify.RefreshMargin.Duration != time.Minute {
			t.Errorf("expected 60s refresh margin, got %s", config.Spotify.RefreshMargin)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[playlists]
names = ["A", "B"]
size = 50

[secrets]
backend = "redis"

[secrets.redis]
addr = "cache:6379"
db = 2

[spotify]
timeout = "5s"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if len(config.Playlists.Names) != 2 || config.Playlists.Size != 50 {
			t.Errorf("unexpected playlists %+v", config.Playlists)
		}
		if config.Secrets.Redis.Addr != "cache:6379" || config.Secrets.Redis.DB != 2 {
			t.Errorf("unexpected redis config %+v", config.Secrets.Redis)
		}
		if config.Spotify.Timeout.Duration != 5*time.Second {
			t.Errorf("expected 5s timeout, got %s", config.Spotify.Timeout)
		}
		if config.Secrets.TokenName != DefaultConfig().Secrets.TokenName {
			t.Errorf("unset values should keep defaults, got token name %q", config.Secrets.TokenName)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("LoadConfig bad duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		os.WriteFile(configPath, []byte("[spotify]\ntimeout = \"soon\"\n"), 0644)

		if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides values", func(t *testing.T) {
		config := DefaultConfig()
		err := config.ApplyEnv(envFrom(map[string]string{
			"PLAYLIST_NAMES":  `["One", "Two"]`,
			"PLAYLIST_LENGTH": "25",
			"SECRETS_BACKEND": "SM",
			"OAUTH_SECRET":    "legacy/oauth",
			"TOKEN_NAME":      "new/token",
			"TOKEN_SECRET":    "legacy/token",
			"AWS_REGION":      "eu-west-1",
			"REDIS_DB":        "4",
			"LOG_LEVEL":       "debug",
		}))
		if err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}

		if len(config.Playlists.Names) != 2 || config.Playlists.Names[1] != "Two" {
			t.Errorf("unexpected names %v", config.Playlists.Names)
		}
		if config.Playlists.Size != 25 {
			t.Errorf("expected size 25, got %d", config.Playlists.Size)
		}
		if NormalizeBackend(config.Secrets.Backend) != BackendSecretsManager {
			t.Errorf("expected secretsmanager backend, got %q", config.Secrets.Backend)
		}
		if config.Secrets.CredentialsName != "legacy/oauth" {
			t.Errorf("legacy alias should apply, got %q", config.Secrets.CredentialsName)
		}
		if config.Secrets.TokenName != "new/token" {
			t.Errorf("primary name should win over alias, got %q", config.Secrets.TokenName)
		}
		if config.Secrets.Region != "eu-west-1" || config.Secrets.Redis.DB != 4 || config.Log.Level != "debug" {
			t.Errorf("unexpected overrides %+v %+v", config.Secrets, config.Log)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("overridden config should validate: %v", err)
		}
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		tc := map[string]map[string]string{
			"names not json": {"PLAYLIST_NAMES": "One,Two"},
			"size not int":   {"PLAYLIST_LENGTH": "big"},
			"count not int":  {"PLAYLIST_COUNT": "three"},
			"redis db":       {"REDIS_DB": "x"},
		}
		for name, env := range tc {
			t.Run(name, func(t *testing.T) {
				err := DefaultConfig().ApplyEnv(envFrom(env))
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})

	t.Run("blank values are ignored", func(t *testing.T) {
		config := DefaultConfig()
		if err := config.ApplyEnv(envFrom(map[string]string{"PLAYLIST_LENGTH": "  "})); err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}
		if config.Playlists.Size != 200 {
			t.Errorf("expected default size, got %d", config.Playlists.Size)
		}
	})
}

func TestValidate(t *testing.T) {
	tc := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "no names", mutate: func(c *Config) { c.Playlists.Names = nil }},
		{name: "blank name", mutate: func(c *Config) { c.Playlists.Names[1] = " " }},
		{name: "count mismatch", mutate: func(c *Config) { c.Playlists.Count = 2 }},
		{name: "matching count", mutate: func(c *Config) { c.Playlists.Count = 3 }, ok: true},
		{name: "zero size", mutate: func(c *Config) { c.Playlists.Size = 0 }},
		{name: "negative size", mutate: func(c *Config) { c.Playlists.Size = -5 }},
		{name: "unknown backend", mutate: func(c *Config) { c.Secrets.Backend = "vault" }},
		{name: "PS alias", mutate: func(c *Config) { c.Secrets.Backend = "PS" }, ok: true},
		{name: "missing token name", mutate: func(c *Config) { c.Secrets.TokenName = "" }},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := LoadEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("LoadEnv() error = %v", err)
		}
	})

	t.Run("does not override existing variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		os.WriteFile(path, []byte("RECENTS_TEST_A=file\nRECENTS_TEST_B=file\n"), 0644)
		t.Setenv("RECENTS_TEST_A", "env")

		if err := LoadEnv(path); err != nil {
			t.Fatalf("LoadEnv() error = %v", err)
		}
		defer os.Unsetenv("RECENTS_TEST_B")

		if got := os.Getenv("RECENTS_TEST_A"); got != "env" {
			t.Errorf("existing variable overridden, got %q", got)
		}
		if got := os.Getenv("RECENTS_TEST_B"); got != "file" {
			t.Errorf("expected value from file, got %q", got)
		}
	})
}
