// Package main provides the vidq CLI entry point.
// vidq answers natural language questions about YouTube videos from their transcripts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/vidq/cmd"
	"github.com/otherjamesbrown/vidq/config"
	"github.com/otherjamesbrown/vidq/credentials"
	"github.com/otherjamesbrown/vidq/pkg/app"
	"github.com/otherjamesbrown/vidq/pkg/buildinfo"
	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// Global flags and state.
var (
	cfgFile      string
	timeout      time.Duration
	outputFormat string
	debug        bool

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig

	// logger writes to stderr so stdout stays machine readable.
	logger logging.Logger = logging.NewNopLogger()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vidq",
	Short: "Ask questions about YouTube videos",
	Long: `vidq answers natural language questions about YouTube videos from their
transcripts.

A question is routed by what it asks for: a stretch of time ("the last 5
minutes"), a moment ("at 12:15"), a topic, the tone, the video's metadata,
or a summary. Only the transcript chunks that matter are sent to the model.

COMMON WORKFLOWS:
  Add a transcript:   vidq ingest dQw4w9WgXcQ.en.vtt
  Ask a question:     vidq ask "what happens in the first 10 minutes?" -v dQw4w9WgXcQ
  Check routing:      vidq resolve "what do they say about pricing?" -v dQw4w9WgXcQ
  Run the API:        vidq serve
  Use from an agent:  vidq mcp

SETUP:
  vidq config init        Write a default ~/.vidq/config.yaml
  vidq auth set-key       Store the model provider API key

Commands support --output json for structured data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if skipInit(c) {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		applyFlagOverrides(cfg)
		if err := cfg.ExpandPaths(); err != nil {
			return err
		}

		level := logging.LevelWarn
		if c.Name() == "serve" || c.Name() == "work" {
			level = logging.LevelInfo
		}
		if v := os.Getenv("VIDQ_LOG_LEVEL"); v != "" {
			level = logging.ParseLevel(v)
		}
		if cfg.Debug {
			level = logging.LevelDebug
		}
		logger = logging.NewLogger(&logging.Config{
			Level:       level,
			ServiceName: "vidq",
			JSONFormat:  cfg.LogJSON,
			Output:      os.Stderr,
		})

		loadStoredAPIKey(cfg)
		return nil
	},
}

func skipInit(c *cobra.Command) bool {
	for p := c; p != nil; p = p.Parent() {
		switch p.Name() {
		case "version", "help", "completion", "auth", "config":
			return true
		}
	}
	return false
}

func applyFlagOverrides(cfg *config.CLIConfig) {
	if timeout != 0 {
		cfg.Timeout = timeout
	}
	if outputFormat != "" {
		cfg.OutputFormat = config.OutputFormat(outputFormat)
	}
	if debug {
		cfg.Debug = true
	}
}

// loadStoredAPIKey fills the model API key from the credential store when no
// environment variable set one.
func loadStoredAPIKey(cfg *config.CLIConfig) {
	if cfg.LLM.APIKey != "" {
		return
	}
	store, err := credentials.NewStore()
	if err != nil {
		logger.Debug("Credential store unavailable", logging.Err(err))
		return
	}
	key, err := store.APIKey(cfg.LLM.Provider)
	if err != nil {
		if !errors.Is(err, credentials.ErrNoCredentials) {
			logger.Warn("Reading stored API key failed", logging.Err(err))
		}
		return
	}
	cfg.LLM.APIKey = key
}

// appDeps hands commands the configuration and logger set up by the root
// command.
func appDeps() *cmd.AppCommandDeps {
	return &cmd.AppCommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) {
			if cfg == nil {
				return nil, errors.New("configuration not loaded")
			}
			return cfg, nil
		},
		OpenApp: func(c *config.CLIConfig, _ logging.Logger) (*app.App, error) {
			return cmd.OpenApp(c, logger)
		},
	}
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the vidq CLI.

Examples:
  vidq version
  vidq version --output-json`,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get("vidq")
		if versionOutputJSON || outputFormat == string(config.OutputFormatJSON) {
			return writeJSON(c.OutOrStdout(), info)
		}
		fmt.Fprintf(c.OutOrStdout(), "vidq %s\n", buildinfo.String())
		fmt.Fprintf(c.OutOrStdout(), "  Go version: %s\n", info.GoVersion)
		return nil
	},
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the vidq CLI configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: defaults, then the config file, then
VIDQ_* environment variables. API keys are never shown.`,
	RunE: func(c *cobra.Command, args []string) error {
		current, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		applyFlagOverrides(current)

		out := c.OutOrStdout()
		if current.OutputFormat == config.OutputFormatJSON {
			return writeJSON(out, current)
		}
		configPath := cfgFile
		if configPath == "" {
			configPath, _ = config.ConfigPath()
		}
		fmt.Fprintf(out, "# %s\n", configPath)
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(current)
	},
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		// Check if config already exists.
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'vidq config show' to view current settings.")
			return nil
		}

		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "\nDefault settings:")
		fmt.Fprintf(out, "  Store:          %s (%s)\n", defaultCfg.Store.Backend, defaultCfg.Store.SQLite.Path)
		fmt.Fprintf(out, "  Model:          %s %s\n", defaultCfg.LLM.Provider, defaultCfg.LLM.Model)
		fmt.Fprintf(out, "  Timeout:        %s\n", defaultCfg.Timeout)
		fmt.Fprintf(out, "  Output format:  %s\n", defaultCfg.OutputFormat)
		fmt.Fprintln(out, "\nStore an API key with 'vidq auth set-key'.")
		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  timeout                        - Command timeout (e.g., 30s, 2m)
  output_format                  - Default output format (text, json, yaml)
  debug                          - Enable debug logging (true/false)
  log_json                       - Log JSON lines instead of console text (true/false)
  resolver.default_duration_sec  - Assumed video length when unknown
  resolver.max_transcript_chars  - Transcript characters sent per analysis
  llm.provider                   - openai or http
  llm.model                      - Model name
  llm.base_url                   - API base URL
  store.backend                  - memory, sqlite, postgres, or cassandra
  store.sqlite.path              - SQLite database file (supports ~)
  store.postgres.url             - PostgreSQL connection URL
  store.cassandra.hosts          - Comma separated Cassandra hosts
  search.enabled                 - Topic index on/off (true/false)
  cache.enabled                  - Analysis cache on/off (true/false)
  scrape.backend                 - none, memory, or redis
  scrape.redis.addr              - Redis address (host:port)
  history.enabled                - Record answered questions (true/false)
  history.url                    - PostgreSQL URL for history
  server.http_address            - HTTP listen address
  server.grpc_address            - gRPC health listen address

API keys are not stored in the config file; use 'vidq auth set-key'.

Examples:
  vidq config set timeout 1m
  vidq config set store.backend postgres
  vidq config set store.postgres.url postgres://vidq@localhost/vidq`,
	Args: cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		currentCfg, err := config.Load(cfgFile)
		if err != nil {
			// If config doesn't load, start with defaults.
			currentCfg = config.DefaultConfig()
		}

		if err := setConfigValue(currentCfg, key, value); err != nil {
			return err
		}
		if err := currentCfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if cfgFile != "" {
			err = config.SaveConfigTo(currentCfg, cfgFile)
		} else {
			err = config.SaveConfig(currentCfg)
		}
		if err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

func setConfigValue(c *config.CLIConfig, key, value string) error {
	switch key {
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		c.Timeout = d
	case "output_format":
		format := config.OutputFormat(value)
		if !format.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
		}
		c.OutputFormat = format
	case "debug":
		return setBool(&c.Debug, key, value)
	case "log_json":
		return setBool(&c.LogJSON, key, value)
	case "resolver.default_duration_sec":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s value: %s (must be a positive number of seconds)", key, value)
		}
		c.Resolver.DefaultDurationSec = n
	case "resolver.max_transcript_chars":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s value: %s (must be zero or a positive number)", key, value)
		}
		c.Resolver.MaxTranscriptChars = n
	case "llm.provider":
		c.LLM.Provider = value
	case "llm.model":
		c.LLM.Model = value
	case "llm.base_url":
		c.LLM.BaseURL = value
	case "store.backend":
		c.Store.Backend = value
	case "store.sqlite.path":
		if _, err := config.ExpandPath(value); err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		c.Store.SQLite.Path = value
	case "store.postgres.url":
		c.Store.Postgres.URL = value
	case "store.cassandra.hosts":
		var hosts []string
		for _, h := range strings.Split(value, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		c.Store.Cassandra.Hosts = hosts
	case "search.enabled":
		return setBool(&c.Search.Enabled, key, value)
	case "cache.enabled":
		return setBool(&c.Cache.Enabled, key, value)
	case "scrape.backend":
		c.Scrape.Backend = value
	case "scrape.redis.addr":
		c.Scrape.Redis.Addr = value
	case "history.enabled":
		return setBool(&c.History.Enabled, key, value)
	case "history.url":
		c.History.URL = value
	case "server.http_address":
		c.Server.HTTPAddress = value
	case "server.grpc_address":
		c.Server.GRPCAddress = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setBool(dst *bool, key, value string) error {
	switch value {
	case "true", "1":
		*dst = true
	case "false", "0":
		*dst = false
	default:
		return fmt.Errorf("invalid %s value: %s (must be true or false)", key, value)
	}
	return nil
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for vidq.

To load completions:

Bash:
  $ source <(vidq completion bash)

Zsh:
  $ vidq completion zsh > "${fpath[1]}/_vidq"

Fish:
  $ vidq completion fish | source

PowerShell:
  PS> vidq completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.vidq/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "command timeout (e.g., 30s, 2m)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add command groups for organized help output.
	rootCmd.AddGroup(
		&cobra.Group{ID: "query", Title: "Querying:"},
		&cobra.Group{ID: "content", Title: "Transcripts:"},
		&cobra.Group{ID: "ops", Title: "Serving:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	deps := appDeps()

	// Querying
	askCmd := cmd.NewAskCommand(deps)
	askCmd.GroupID = "query"
	rootCmd.AddCommand(askCmd)

	resolveCmd := cmd.NewResolveCommand(deps)
	resolveCmd.GroupID = "query"
	rootCmd.AddCommand(resolveCmd)

	historyCmd := cmd.NewHistoryCommand(deps)
	historyCmd.GroupID = "query"
	rootCmd.AddCommand(historyCmd)

	// Transcripts
	ingestCmd := cmd.NewIngestCommand(deps)
	ingestCmd.GroupID = "content"
	rootCmd.AddCommand(ingestCmd)

	videosCmd := cmd.NewVideosCommand(deps)
	videosCmd.GroupID = "content"
	rootCmd.AddCommand(videosCmd)

	scrapeCmd := cmd.NewScrapeCommand(deps)
	scrapeCmd.GroupID = "content"
	rootCmd.AddCommand(scrapeCmd)

	// Serving
	serveCmd := cmd.NewServeCommand(deps)
	serveCmd.GroupID = "ops"
	rootCmd.AddCommand(serveCmd)

	mcpCmd := cmd.NewMCPCommand(deps)
	mcpCmd.GroupID = "ops"
	rootCmd.AddCommand(mcpCmd)

	// Setup
	configCmd.GroupID = "setup"
	rootCmd.AddCommand(configCmd)

	authCmd := cmd.NewAuthCommand(nil)
	authCmd.GroupID = "setup"
	rootCmd.AddCommand(authCmd)

	completionCmd.GroupID = "setup"
	rootCmd.AddCommand(completionCmd)

	versionCmd.GroupID = "setup"
	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)

	// Config subcommands.
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
}

func main() {
	// Cancel the running command on interrupt; servers shut down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
