package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/otherjamesbrown/vidq/pkg/store"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

var envVars = []string{
	"VIDQ_TIMEOUT",
	"VIDQ_OUTPUT_FORMAT",
	"VIDQ_DEBUG",
	"VIDQ_LOG_JSON",
	"VIDQ_DEFAULT_DURATION",
	"VIDQ_LLM_PROVIDER",
	"VIDQ_LLM_MODEL",
	"VIDQ_LLM_BASE_URL",
	"VIDQ_LLM_API_KEY",
	"VIDQ_LLM_FALLBACK_URL",
	"OPENAI_API_KEY",
	"VIDQ_STORE_BACKEND",
	"VIDQ_SQLITE_PATH",
	"VIDQ_DB_URL",
	"VIDQ_DB_HOST",
	"VIDQ_DB_PORT",
	"VIDQ_CASSANDRA_HOSTS",
	"VIDQ_CASSANDRA_KEYSPACE",
	"VIDQ_SEARCH_INDEX",
	"VIDQ_CACHE_PATH",
	"VIDQ_CACHE_TTL",
	"VIDQ_SCRAPE_BACKEND",
	"VIDQ_REDIS_ADDR",
	"VIDQ_REDIS_PASSWORD",
	"VIDQ_HISTORY_URL",
	"VIDQ_HTTP_ADDR",
	"VIDQ_GRPC_ADDR",
}

// isolate points the config dir at a temp dir and blanks every variable the
// loader reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VIDQ_CONFIG_DIR", dir)
	for _, key := range envVars {
		t.Setenv(key, "")
	}
	return dir
}

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.OutputFormat != DefaultOutputFormat {
		t.Errorf("OutputFormat = %v, want %v", cfg.OutputFormat, DefaultOutputFormat)
	}
	if cfg.Resolver.DefaultDurationSec != query.DefaultDurationSec {
		t.Errorf("DefaultDurationSec = %d, want %d", cfg.Resolver.DefaultDurationSec, query.DefaultDurationSec)
	}
	if cfg.Store.Backend != store.BackendSQLite {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if want := filepath.Join(dir, "vidq.db"); cfg.Store.SQLite.Path != want {
		t.Errorf("SQLite.Path = %q, want %q", cfg.Store.SQLite.Path, want)
	}
	if want := filepath.Join(dir, "index"); cfg.Search.IndexPath != want {
		t.Errorf("Search.IndexPath = %q, want %q", cfg.Search.IndexPath, want)
	}
	if cfg.Scrape.Backend != ScrapeMemory {
		t.Errorf("Scrape.Backend = %q, want memory", cfg.Scrape.Backend)
	}
	if cfg.History.Enabled {
		t.Error("History should be disabled by default")
	}
	if cfg.Debug {
		t.Error("Debug should be false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

// TestOutputFormat_IsValid verifies output format validation.
func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   bool
	}{
		{OutputFormatText, true},
		{OutputFormatJSON, true},
		{OutputFormatYAML, true},
		{"xml", false},
		{"", false},
		{"JSON", false},
	}

	for _, tc := range tests {
		t.Run(string(tc.format), func(t *testing.T) {
			if got := tc.format.IsValid(); got != tc.want {
				t.Errorf("IsValid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCLIConfig_Validate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name   string
		modify func(*CLIConfig)
		errMsg string
	}{
		{
			name:   "defaults",
			modify: func(*CLIConfig) {},
		},
		{
			name:   "zero timeout",
			modify: func(c *CLIConfig) { c.Timeout = 0 },
			errMsg: "timeout must be positive",
		},
		{
			name:   "negative timeout",
			modify: func(c *CLIConfig) { c.Timeout = -5 * time.Second },
			errMsg: "timeout must be positive",
		},
		{
			name:   "invalid output format",
			modify: func(c *CLIConfig) { c.OutputFormat = "invalid" },
			errMsg: "invalid output_format",
		},
		{
			name:   "zero default duration",
			modify: func(c *CLIConfig) { c.Resolver.DefaultDurationSec = 0 },
			errMsg: "default_duration_sec",
		},
		{
			name:   "unknown llm provider",
			modify: func(c *CLIConfig) { c.LLM.Provider = "carrier-pigeon" },
			errMsg: "llm:",
		},
		{
			name:   "unknown store backend",
			modify: func(c *CLIConfig) { c.Store.Backend = "mongo" },
			errMsg: "invalid store.backend",
		},
		{
			name:   "cassandra without hosts",
			modify: func(c *CLIConfig) { c.Store.Backend = store.BackendCassandra },
			errMsg: "store.cassandra.hosts",
		},
		{
			name: "cassandra with hosts",
			modify: func(c *CLIConfig) {
				c.Store.Backend = store.BackendCassandra
				c.Store.Cassandra.Hosts = []string{"10.0.0.1"}
			},
		},
		{
			name: "postgres without host",
			modify: func(c *CLIConfig) {
				c.Store.Backend = store.BackendPostgres
				c.Store.Postgres.Host = ""
			},
			errMsg: "store.postgres",
		},
		{
			name:   "redis without addr",
			modify: func(c *CLIConfig) { c.Scrape.Backend = ScrapeRedis; c.Scrape.Redis.Addr = "" },
			errMsg: "scrape.redis.addr",
		},
		{
			name:   "unknown scrape backend",
			modify: func(c *CLIConfig) { c.Scrape.Backend = "kafka" },
			errMsg: "invalid scrape.backend",
		},
		{
			name:   "history enabled without url",
			modify: func(c *CLIConfig) { c.History.Enabled = true },
			errMsg: "history.url",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.errMsg)
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tc.errMsg)
			}
		})
	}
}

// TestConfigDir verifies config directory path resolution.
func TestConfigDir(t *testing.T) {
	t.Run("with env var", func(t *testing.T) {
		t.Setenv("VIDQ_CONFIG_DIR", "/tmp/test-vidq-config")
		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		if dir != "/tmp/test-vidq-config" {
			t.Errorf("ConfigDir() = %v, want /tmp/test-vidq-config", dir)
		}
	})

	t.Run("default without env var", func(t *testing.T) {
		t.Setenv("VIDQ_CONFIG_DIR", "")
		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		home, _ := os.UserHomeDir()
		if expected := filepath.Join(home, DefaultConfigDir); dir != expected {
			t.Errorf("ConfigDir() = %v, want %v", dir, expected)
		}
	})
}

// TestLoadConfig_Defaults verifies default values when no config exists.
func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.Server.HTTPAddress != DefaultHTTPAddress {
		t.Errorf("HTTPAddress = %v, want %v", cfg.Server.HTTPAddress, DefaultHTTPAddress)
	}
}

// TestLoadConfig_WithEnvOverrides verifies environment variable overrides.
func TestLoadConfig_WithEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("VIDQ_TIMEOUT", "45s")
	t.Setenv("VIDQ_OUTPUT_FORMAT", "json")
	t.Setenv("VIDQ_DEBUG", "1")
	t.Setenv("VIDQ_DEFAULT_DURATION", "900")
	t.Setenv("VIDQ_LLM_PROVIDER", "vllm")
	t.Setenv("VIDQ_LLM_BASE_URL", "http://gpu-box:8000/")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("VIDQ_LLM_API_KEY", "sk-vidq")
	t.Setenv("VIDQ_LLM_FALLBACK_URL", "http://localhost:11434")
	t.Setenv("VIDQ_STORE_BACKEND", "cassandra")
	t.Setenv("VIDQ_CASSANDRA_HOSTS", "10.0.0.1, 10.0.0.2,")
	t.Setenv("VIDQ_SCRAPE_BACKEND", "redis")
	t.Setenv("VIDQ_REDIS_ADDR", "redis:6379")
	t.Setenv("VIDQ_HISTORY_URL", "postgres://localhost/vidq")
	t.Setenv("VIDQ_HTTP_ADDR", ":9000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", cfg.OutputFormat)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Resolver.DefaultDurationSec != 900 {
		t.Errorf("DefaultDurationSec = %d, want 900", cfg.Resolver.DefaultDurationSec)
	}
	if cfg.LLM.Provider != "http" || cfg.LLM.BaseURL != "http://gpu-box:8000" {
		t.Errorf("LLM = %+v, want http provider at http://gpu-box:8000", cfg.LLM)
	}
	if cfg.LLM.APIKey != "sk-vidq" {
		t.Errorf("APIKey = %q, want VIDQ_LLM_API_KEY to win", cfg.LLM.APIKey)
	}
	if got := cfg.Store.Cassandra.Hosts; len(got) != 2 || got[1] != "10.0.0.2" {
		t.Errorf("Cassandra.Hosts = %v", got)
	}
	if cfg.Scrape.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Scrape.Redis.Addr)
	}
	if !cfg.History.Enabled || cfg.History.URL != "postgres://localhost/vidq" {
		t.Errorf("History = %+v, want enabled with url", cfg.History)
	}
	if cfg.Server.HTTPAddress != ":9000" {
		t.Errorf("HTTPAddress = %q", cfg.Server.HTTPAddress)
	}
	if cfg.LLM.Fallback == nil || cfg.LLM.Fallback.BaseURL != "http://localhost:11434" {
		t.Errorf("LLM.Fallback = %+v, want http://localhost:11434", cfg.LLM.Fallback)
	}
}

// TestLoadFromEnv_InvalidValuesIgnored verifies unparsable values keep defaults.
func TestLoadFromEnv_InvalidValuesIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("VIDQ_TIMEOUT", "soon")
	t.Setenv("VIDQ_DEFAULT_DURATION", "ten")
	t.Setenv("VIDQ_CACHE_TTL", "forever")

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want default", cfg.Timeout)
	}
	if cfg.Resolver.DefaultDurationSec != query.DefaultDurationSec {
		t.Errorf("DefaultDurationSec = %d, want default", cfg.Resolver.DefaultDurationSec)
	}
	if cfg.Cache.TTL != DefaultCacheTTL {
		t.Errorf("Cache.TTL = %v, want default", cfg.Cache.TTL)
	}
}

// TestLoadConfig_FromFile verifies loading from YAML file.
func TestLoadConfig_FromFile(t *testing.T) {
	dir := isolate(t)

	content := `timeout: 90s
output_format: yaml
resolver:
  default_duration_sec: 1200
llm:
  provider: http
  model: llama-3.1-8b
  base_url: http://localhost:8000
store:
  backend: memory
cache:
  enabled: false
scrape:
  backend: none
server:
  http_address: 0.0.0.0:8080
  cors_origins: ["https://example.com"]
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Timeout)
	}
	if cfg.OutputFormat != OutputFormatYAML {
		t.Errorf("OutputFormat = %v, want yaml", cfg.OutputFormat)
	}
	if cfg.Resolver.DefaultDurationSec != 1200 {
		t.Errorf("DefaultDurationSec = %d, want 1200", cfg.Resolver.DefaultDurationSec)
	}
	if cfg.LLM.Model != "llama-3.1-8b" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Store.Backend != store.BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache should be disabled")
	}
	if cfg.Scrape.Backend != ScrapeNone {
		t.Errorf("Scrape.Backend = %q, want none", cfg.Scrape.Backend)
	}
	if len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	// Keys missing from the file keep their defaults.
	if cfg.Search.IndexPath != filepath.Join(dir, "index") {
		t.Errorf("Search.IndexPath = %q, want default", cfg.Search.IndexPath)
	}
	if cfg.Cache.TTL != DefaultCacheTTL {
		t.Errorf("Cache.TTL = %v, want default", cfg.Cache.TTL)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := isolate(t)

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() with a missing explicit path should fail")
	}

	path := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(path, []byte("timeout: 5s\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := isolate(t)

	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "timeout: [unclosed\n"},
		{"bad duration", "timeout: soon\n"},
		{"fails validation", "output_format: xml\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(tc.content), 0600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("LoadConfig() expected error")
			}
		})
	}
}

// TestSaveConfig verifies configuration saving and that secrets stay out of the file.
func TestSaveConfig(t *testing.T) {
	dir := isolate(t)

	cfg := DefaultConfig()
	cfg.Timeout = time.Minute
	cfg.OutputFormat = OutputFormatJSON
	cfg.LLM.APIKey = "sk-secret"
	cfg.Scrape.Redis.Password = "hunter2"
	cfg.Store.Postgres.Password = "pgpass"
	cfg.Server.CORSOrigins = []string{"http://localhost:3000"}

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, DefaultConfigFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, secret := range []string{"sk-secret", "hunter2", "pgpass"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("saved config contains secret %q", secret)
		}
	}
	if !strings.Contains(string(data), "timeout: 1m0s") {
		t.Errorf("durations should be saved as strings:\n%s", data)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want 1m", loaded.Timeout)
	}
	if loaded.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v, want json", loaded.OutputFormat)
	}
	if len(loaded.Server.CORSOrigins) != 1 {
		t.Errorf("CORSOrigins = %v", loaded.Server.CORSOrigins)
	}
}

// TestFilePermissions verifies saved config is only readable by the owner.
func TestFilePermissions(t *testing.T) {
	dir := isolate(t)
	nested := filepath.Join(dir, "nested", DefaultConfigFile)

	if err := SaveConfigTo(DefaultConfig(), nested); err != nil {
		t.Fatalf("SaveConfigTo() error = %v", err)
	}
	info, err := os.Stat(nested)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config permissions = %o, want 600", perm)
	}
}

func TestExpandPaths(t *testing.T) {
	isolate(t)
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg := DefaultConfig()
	cfg.Store.SQLite.Path = "~/data/vidq.db"
	cfg.Cache.Path = ""
	if err := cfg.ExpandPaths(); err != nil {
		t.Fatalf("ExpandPaths() error = %v", err)
	}
	if want := filepath.Join(home, "data/vidq.db"); cfg.Store.SQLite.Path != want {
		t.Errorf("SQLite.Path = %q, want %q", cfg.Store.SQLite.Path, want)
	}
	if cfg.Cache.Path != "" {
		t.Errorf("empty path should stay empty, got %q", cfg.Cache.Path)
	}
}
