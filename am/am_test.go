package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/cadence/errors"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance without user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("expected default database path %q, got %q", DefaultDatabasePath, cfg.Database.Path)
	}
	if cfg.Pulse.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Pulse.Workers)
	}
	if !cfg.Pulse.Coalesce {
		t.Error("expected coalesce to default to true")
	}
	if cfg.Pulse.MisfireGrace() != time.Second {
		t.Errorf("expected misfire grace 1s, got %s", cfg.Pulse.MisfireGrace())
	}
	if cfg.Pulse.MaxIdleWait() != time.Minute {
		t.Errorf("expected max idle wait 1m, got %s", cfg.Pulse.MaxIdleWait())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config { return *DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "zero workers is invalid", mutate: func(c *Config) { c.Pulse.Workers = 0 }, wantErr: true},
		{name: "zero queue is valid (unbuffered)", mutate: func(c *Config) { c.Pulse.QueueSize = 0 }, wantErr: false},
		{name: "negative queue is invalid", mutate: func(c *Config) { c.Pulse.QueueSize = -1 }, wantErr: true},
		{name: "zero grace is valid", mutate: func(c *Config) { c.Pulse.MisfireGraceSeconds = 0 }, wantErr: false},
		{name: "negative grace is invalid", mutate: func(c *Config) { c.Pulse.MisfireGraceSeconds = -1 }, wantErr: true},
		{name: "zero max instances is invalid", mutate: func(c *Config) { c.Pulse.MaxInstances = 0 }, wantErr: true},
		{name: "zero idle wait is invalid", mutate: func(c *Config) { c.Pulse.MaxIdleWaitSeconds = 0 }, wantErr: true},
		{name: "zero retry interval is invalid", mutate: func(c *Config) { c.Pulse.RetryIntervalSeconds = 0 }, wantErr: true},
		{name: "negative retention is invalid", mutate: func(c *Config) { c.Pulse.ExecutionRetentionDays = -1 }, wantErr: true},
		{name: "unknown log level is invalid", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrConfiguration) {
				t.Errorf("Validate() error should be a configuration error, got %v", err)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"database.path", DefaultDatabasePath},
		{"pulse.workers", 4},
		{"pulse.queue_size", 64},
		{"pulse.misfire_grace_seconds", 1},
		{"pulse.max_instances", 1},
		{"pulse.coalesce", true},
		{"pulse.retry_interval_seconds", 5},
		{"log.level", "info"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := v.Get(tt.key); got != tt.expected {
				t.Errorf("default %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
[database]
path = "/var/lib/cadence/jobs.db"

[pulse]
workers = 8
coalesce = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if cfg.Database.Path != "/var/lib/cadence/jobs.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Pulse.Workers != 8 {
		t.Errorf("pulse.workers = %d, want 8", cfg.Pulse.Workers)
	}
	if cfg.Pulse.Coalesce {
		t.Error("pulse.coalesce should be overridden to false")
	}
	// Unset keys keep their defaults
	if cfg.Pulse.MaxInstances != 1 {
		t.Errorf("pulse.max_instances = %d, want default 1", cfg.Pulse.MaxInstances)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestFindProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("walks up to am.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test1", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)
		os.WriteFile(filepath.Join(tmpDir, "test1", ConfigFileName), []byte(""), 0644)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Fatal("expected to find config file")
		}
		if !filepath.IsAbs(result) {
			t.Error("expected absolute path")
		}
		if filepath.Base(result) != ConfigFileName {
			t.Errorf("expected %s, got %s", ConfigFileName, filepath.Base(result))
		}
	})

	t.Run("ignores other toml files", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test2", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)
		os.WriteFile(filepath.Join(tmpDir, "test2", "config.toml"), []byte(""), 0644)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		if result := findProjectConfig(); strings.HasSuffix(result, "config.toml") {
			t.Errorf("config.toml should not be picked up, got %s", result)
		}
	})
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("[pulse]\nworkers = 2\n"), 0644)

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	os.Chdir(dir)

	t.Setenv("CADENCE_PULSE_WORKERS", "9")
	t.Setenv("HOME", dir)
	Reset()
	defer Reset()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Pulse.Workers != 9 {
		t.Errorf("env should win over am.toml: workers = %d", cfg.Pulse.Workers)
	}

	sources := map[string]SettingInfo{}
	for _, s := range Introspect() {
		sources[s.Key] = s
	}
	if got := sources["pulse.workers"].Source; got != SourceEnvironment {
		t.Errorf("pulse.workers source = %s, want environment", got)
	}
	if got := sources["pulse.queue_size"].Source; got != SourceDefault {
		t.Errorf("pulse.queue_size source = %s, want default", got)
	}
}

func TestGetDatabasePath(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetDatabasePath(); got != DefaultDatabasePath {
		t.Errorf("empty path should fall back to %s, got %s", DefaultDatabasePath, got)
	}
	cfg.Database.Path = "postgres://localhost/cadence"
	if got := cfg.GetDatabasePath(); got != "postgres://localhost/cadence" {
		t.Errorf("GetDatabasePath() = %s", got)
	}
}

func TestEnvKey(t *testing.T) {
	if got := EnvKey("pulse.max_instances"); got != "CADENCE_PULSE_MAX_INSTANCES" {
		t.Errorf("EnvKey() = %s", got)
	}
}
