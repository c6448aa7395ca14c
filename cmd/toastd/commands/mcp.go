package commands

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/oktsec/toastd/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start toastd as an MCP server (stdio)",
		Long: `Exposes a running toastd server as MCP tools. Add to your MCP client config:

  {
    "mcpServers": {
      "toastd": {
        "command": "toastd",
        "args": ["mcp", "--config", "./toastd.yaml"]
      }
    }
  }

Tools: notify, raise_alert, list_toasts, dismiss_toast`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("error")
			client, err := newClient("mcp")
			if err != nil {
				return err
			}
			backend := mcpserver.ClientBackend{Client: client}
			s := mcpserver.NewServer(backend, version, logger)
			return mcpserver.ServeStdio(cmd.Context(), s)
		},
	}
}
