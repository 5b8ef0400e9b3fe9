package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/vidq/credentials"
	"github.com/otherjamesbrown/vidq/pkg/llm"
)

// Environment variables that take precedence over stored keys.
var apiKeyEnvVars = []string{"VIDQ_LLM_API_KEY", "OPENAI_API_KEY"}

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	OpenStore func() (*credentials.Store, error)
	// ReadSecret reads a key without echo. Nil reads a line from stdin.
	ReadSecret func() (string, error)
	Getenv     func(string) string
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	return &AuthCommandDeps{
		OpenStore:  credentials.NewStore,
		ReadSecret: readTerminalSecret,
		Getenv:     os.Getenv,
	}
}

// NewAuthCommand creates the 'auth' command group.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAuthDeps()
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage model provider API keys",
		Long: `Manage the API keys vidq uses to call the model provider.

Keys are stored encrypted in ~/.vidq/credentials.yaml. The encryption key
lives in the system keyring. Without a keyring, set VIDQ_ENCRYPTION_KEY
(64 hex characters) or VIDQ_PASSPHRASE.

VIDQ_LLM_API_KEY and OPENAI_API_KEY take precedence over stored keys.`,
	}

	cmd.AddCommand(newAuthSetKeyCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	cmd.AddCommand(newAuthClearCommand(deps))
	return cmd
}

func newAuthSetKeyCommand(deps *AuthCommandDeps) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "set-key [provider]",
		Short: "Store an API key",
		Long: `Store the API key for a model provider (default: openai).

Examples:
  # Prompt for the key without echo
  vidq auth set-key

  # Non-interactive
  vidq auth set-key openai --key sk-...

  # From a secret manager
  op read op://dev/openai/key | vidq auth set-key --key -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthSetKey(cmd.OutOrStdout(), cmd.InOrStdin(), deps, providerArg(args), key)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", `API key, or "-" to read it from stdin`)
	return cmd
}

func newAuthStatusCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.OutOrStdout(), deps)
		},
	}
}

func newAuthClearCommand(deps *AuthCommandDeps) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [provider]",
		Short: "Remove a stored API key",
		Long: `Remove the stored key for a provider (default: openai), or every key
with --all. Environment variables are not affected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthClear(cmd.OutOrStdout(), deps, providerArg(args), all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every stored key")
	return cmd
}

func providerArg(args []string) string {
	if len(args) == 0 {
		return llm.KindOpenAI
	}
	return strings.ToLower(strings.TrimSpace(args[0]))
}

func runAuthSetKey(out io.Writer, stdin io.Reader, deps *AuthCommandDeps, provider, key string) error {
	switch provider {
	case llm.KindOpenAI, llm.KindHTTP:
	default:
		return fmt.Errorf("unknown provider %q (must be %s or %s)", provider, llm.KindOpenAI, llm.KindHTTP)
	}

	var err error
	switch key {
	case "-":
		key, err = readLine(stdin)
	case "":
		if deps.ReadSecret == nil {
			key, err = readLine(stdin)
			break
		}
		fmt.Fprintf(out, "API key for %s: ", provider)
		key, err = deps.ReadSecret()
		fmt.Fprintln(out)
	}
	if err != nil {
		return fmt.Errorf("reading API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if len(key) < 8 {
		return fmt.Errorf("API key is too short")
	}

	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	if err := store.SetAPIKey(provider, key); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}

	fmt.Fprintf(out, "%s %s key %s\n", OKStyle.Render("Saved"), provider, credentials.MaskAPIKey(key))
	if path, err := credentials.CredentialsPath(); err == nil {
		fmt.Fprintf(out, "%s %s\n", label("Stored in"), path)
	}
	return nil
}

func runAuthStatus(out io.Writer, deps *AuthCommandDeps) error {
	fmt.Fprintln(out, TitleStyle.Render("API Keys"))
	fmt.Fprintln(out)

	activeEnv := ""
	for _, name := range apiKeyEnvVars {
		if v := deps.Getenv(name); v != "" {
			fmt.Fprintf(out, "%s %s\n", label(name), credentials.MaskAPIKey(v))
			if activeEnv == "" {
				activeEnv = name
			}
		}
	}

	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	creds, err := store.Load()
	switch {
	case errors.Is(err, credentials.ErrNoCredentials):
		fmt.Fprintf(out, "%s %s\n", label("Stored"), DimStyle.Render("none"))
	case err != nil:
		return fmt.Errorf("loading credentials: %w", err)
	default:
		for _, p := range creds.Providers() {
			k := creds.Keys[p]
			fmt.Fprintf(out, "%s %s %s\n", label(p), credentials.MaskAPIKey(k),
				DimStyle.Render("(id "+credentials.GenerateAPIKeyID(k)+", set "+creds.Updated[p].Format(time.DateOnly)+")"))
		}
		fmt.Fprintf(out, "%s %s\n", label("Updated"), creds.LastUpdated.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "%s %s\n", label("Encryption"), store.KeyDescription())

	fmt.Fprintln(out)
	switch {
	case activeEnv != "":
		fmt.Fprintf(out, "Active source: %s environment variable\n", activeEnv)
	case err == nil:
		fmt.Fprintln(out, "Active source: stored credentials")
	default:
		fmt.Fprintln(out, WarnStyle.Render("No API key. Run 'vidq auth set-key' to add one."))
	}
	return nil
}

func runAuthClear(out io.Writer, deps *AuthCommandDeps, provider string, all bool) error {
	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	if all {
		err = store.Delete()
	} else {
		err = store.DeleteAPIKey(provider)
	}
	if err != nil {
		return fmt.Errorf("removing credentials: %w", err)
	}

	if all {
		fmt.Fprintln(out, "Removed all stored keys.")
	} else {
		fmt.Fprintf(out, "Removed the %s key.\n", provider)
	}
	for _, name := range apiKeyEnvVars {
		if deps.Getenv(name) != "" {
			fmt.Fprintf(out, "\nNote: %s is still set. Unset it with: unset %s\n", name, name)
		}
	}
	return nil
}

func readTerminalSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(os.Stdin)
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
