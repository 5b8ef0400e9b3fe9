// Package config provides configuration management for the vidq command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/vidq/pkg/db"
	"github.com/otherjamesbrown/vidq/pkg/history"
	"github.com/otherjamesbrown/vidq/pkg/llm"
	"github.com/otherjamesbrown/vidq/pkg/scrape"
	"github.com/otherjamesbrown/vidq/pkg/store"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultTimeout      = 2 * time.Minute
	DefaultOutputFormat = OutputFormatText
	DefaultConfigDir    = ".vidq"
	DefaultConfigFile   = "config.yaml"
	DefaultHTTPAddress  = "localhost:8088"
	DefaultGRPCAddress  = "localhost:8089"
	DefaultCacheTTL     = 24 * time.Hour
)

// Scrape backends accepted in ScrapeConfig.Backend.
const (
	ScrapeNone   = "none"
	ScrapeMemory = "memory"
	ScrapeRedis  = "redis"
)

// ResolverConfig tunes intent resolution.
type ResolverConfig struct {
	// DefaultDurationSec is assumed when a video's length is unknown.
	DefaultDurationSec int `yaml:"default_duration_sec"`

	// MaxTranscriptChars caps the transcript text sent with one analysis
	// prompt. Zero uses the built-in limit.
	MaxTranscriptChars int `yaml:"max_transcript_chars,omitempty"`
}

// SearchConfig configures the topic index.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`
	// IndexPath is the index directory. Empty keeps the index in memory.
	IndexPath string `yaml:"index_path,omitempty"`
}

// CacheConfig configures the analysis cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path,omitempty"`
	TTL     time.Duration `yaml:"ttl,omitempty"`
}

// ScrapeConfig selects where scrape requests go.
type ScrapeConfig struct {
	Backend string             `yaml:"backend"`
	Redis   scrape.RedisConfig `yaml:"redis"`
}

// ServerConfig configures `vidq serve`.
type ServerConfig struct {
	HTTPAddress string   `yaml:"http_address"`
	GRPCAddress string   `yaml:"grpc_address,omitempty"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
	// RequestsPerSecond limits /v1 requests per client (0 = unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// Timeout bounds a single command.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// LogJSON switches logs from the console writer to JSON lines.
	LogJSON bool `yaml:"log_json,omitempty"`

	Resolver ResolverConfig `yaml:"resolver"`
	LLM      llm.Config     `yaml:"llm"`
	Store    store.Config   `yaml:"store"`
	Search   SearchConfig   `yaml:"search"`
	Cache    CacheConfig    `yaml:"cache"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	History  history.Config `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
}

// DefaultConfig returns a CLIConfig with default values. Data lives under
// the config directory; the store defaults to SQLite.
func DefaultConfig() *CLIConfig {
	dir, err := ConfigDir()
	if err != nil {
		dir = DefaultConfigDir
	}
	return &CLIConfig{
		Timeout:      DefaultTimeout,
		OutputFormat: DefaultOutputFormat,
		Resolver: ResolverConfig{
			DefaultDurationSec: query.DefaultDurationSec,
		},
		LLM: llm.DefaultConfig(),
		Store: store.Config{
			Backend:   store.BackendSQLite,
			SQLite:    store.SQLiteConfig{Path: filepath.Join(dir, "vidq.db")},
			Postgres:  *db.DefaultConfig(),
			Cassandra: store.CassandraConfig{Keyspace: "vidq", Consistency: "quorum", Timeout: 10 * time.Second},
		},
		Search:  SearchConfig{Enabled: true, IndexPath: filepath.Join(dir, "index")},
		Cache:   CacheConfig{Enabled: true, Path: filepath.Join(dir, "cache"), TTL: DefaultCacheTTL},
		Scrape:  ScrapeConfig{Backend: ScrapeMemory, Redis: scrape.DefaultRedisConfig()},
		History: history.DefaultConfig(),
		Server:  ServerConfig{HTTPAddress: DefaultHTTPAddress, GRPCAddress: DefaultGRPCAddress},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $VIDQ_CONFIG_DIR if set, otherwise ~/.vidq
func ConfigDir() (string, error) {
	if dir := os.Getenv("VIDQ_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the default path.
func LoadConfig() (*CLIConfig, error) {
	return Load("")
}

// Load loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (path, or ~/.vidq/config.yaml, or $VIDQ_CONFIG_DIR/config.yaml)
// 3. Environment variables (VIDQ_*)
//
// A missing file at the default path is not an error; a missing file at an
// explicit path is.
func Load(path string) (*CLIConfig, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("getting config path: %w", err)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil || explicit {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Overlay environment variables.
	loadFromEnv(cfg)

	// Validate the configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile decodes a YAML file over cfg. Keys absent from the file keep
// their current values.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("VIDQ_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("VIDQ_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("VIDQ_DEBUG"); isTrue(v) {
		cfg.Debug = true
	}

	if v := os.Getenv("VIDQ_LOG_JSON"); isTrue(v) {
		cfg.LogJSON = true
	}

	if v := os.Getenv("VIDQ_DEFAULT_DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Resolver.DefaultDurationSec = n
		}
	}

	loadLLMFromEnv(cfg)
	loadStoreFromEnv(cfg)

	if v := os.Getenv("VIDQ_SEARCH_INDEX"); v != "" {
		cfg.Search.IndexPath = v
	}
	if v := os.Getenv("VIDQ_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("VIDQ_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = ttl
		}
	}

	if v := os.Getenv("VIDQ_SCRAPE_BACKEND"); v != "" {
		cfg.Scrape.Backend = v
	}
	if v := os.Getenv("VIDQ_REDIS_ADDR"); v != "" {
		cfg.Scrape.Redis.Addr = v
	}
	if v := os.Getenv("VIDQ_REDIS_PASSWORD"); v != "" {
		cfg.Scrape.Redis.Password = v
	}

	if v := os.Getenv("VIDQ_HISTORY_URL"); v != "" {
		cfg.History.URL = v
		cfg.History.Enabled = true
	}

	if v := os.Getenv("VIDQ_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("VIDQ_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddress = v
	}
}

// loadLLMFromEnv overlays model provider settings. The API key is never read
// from the config file; VIDQ_LLM_API_KEY wins over OPENAI_API_KEY.
func loadLLMFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("VIDQ_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("VIDQ_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("VIDQ_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("VIDQ_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("VIDQ_LLM_FALLBACK_URL"); v != "" {
		cfg.LLM.Fallback = &llm.Config{Provider: llm.KindHTTP, Model: cfg.LLM.Model, BaseURL: v}
	}
}

func loadStoreFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("VIDQ_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("VIDQ_SQLITE_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}
	cfg.Store.Postgres.ApplyEnv()
	if v := os.Getenv("VIDQ_CASSANDRA_HOSTS"); v != "" {
		cfg.Store.Cassandra.Hosts = splitList(v)
	}
	if v := os.Getenv("VIDQ_CASSANDRA_KEYSPACE"); v != "" {
		cfg.Store.Cassandra.Keyspace = v
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.Resolver.DefaultDurationSec <= 0 {
		return fmt.Errorf("resolver.default_duration_sec must be positive")
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	switch strings.ToLower(c.Store.Backend) {
	case "", store.BackendMemory, store.BackendSQLite:
	case store.BackendPostgres:
		if err := c.Store.Postgres.Validate(); err != nil {
			return fmt.Errorf("store.postgres: %w", err)
		}
	case store.BackendCassandra:
		if len(c.Store.Cassandra.Hosts) == 0 {
			return fmt.Errorf("store.cassandra.hosts is required for the cassandra backend")
		}
	default:
		return fmt.Errorf("invalid store.backend: %q (must be memory, sqlite, postgres, or cassandra)", c.Store.Backend)
	}

	switch c.Scrape.Backend {
	case "", ScrapeNone, ScrapeMemory:
	case ScrapeRedis:
		if c.Scrape.Redis.Addr == "" {
			return fmt.Errorf("scrape.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid scrape.backend: %q (must be none, memory, or redis)", c.Scrape.Backend)
	}

	if c.History.Enabled && c.History.URL == "" {
		return fmt.Errorf("history.url is required when history is enabled")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the default config file. Secrets
// are not written.
func SaveConfig(cfg *CLIConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("getting config path: %w", err)
	}
	return SaveConfigTo(cfg, path)
}

// SaveConfigTo saves the configuration to path, creating its directory.
func SaveConfigTo(cfg *CLIConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// ExpandPaths expands ~ in every filesystem path of the configuration.
func (c *CLIConfig) ExpandPaths() error {
	for _, p := range []*string{&c.Store.SQLite.Path, &c.Search.IndexPath, &c.Cache.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
