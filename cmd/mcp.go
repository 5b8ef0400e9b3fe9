package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/vidq/pkg/mcpserver"
)

// NewMCPCommand creates the 'mcp' command.
func NewMCPCommand(deps *AppCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAppDeps()
	}

	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the question tools over MCP stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools:
  ask_video       answer a question about a video
  resolve_query   show how a question would be routed

Logs are written to stderr. Add vidq to an MCP client with a command of
"vidq mcp".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, deps, cmd.InOrStdin(), os.Stdout)
		},
	}
}

func runMCP(cmd *cobra.Command, deps *AppCommandDeps, in io.Reader, out io.Writer) error {
	a, _, err := deps.open()
	if err != nil {
		return err
	}
	defer a.Close()

	asst, err := a.Assistant()
	if err != nil {
		return fmt.Errorf("starting assistant: %w", err)
	}
	return mcpserver.New(asst, deps.logger()).ServeStdio(cmd.Context(), in, out)
}
