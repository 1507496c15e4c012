package cmd

import (
	"github.com/spf13/cobra"

	"github.com/craftlabs/forma/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This allows Claude Code to query formulation history and run
formulation operations natively. Configure in Claude Code with:

  {
    "mcpServers": {
      "forma": { "command": "forma", "args": ["mcp"] }
    }
  }

Available tools: forma_list_history, forma_get_formulation,
forma_delete_formulation, forma_analyze, forma_suggest, forma_formulate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		// The runner is optional: without a backend the history tools
		// still work.
		runner, err := newRunner(nil)
		if err != nil {
			ui.Warning("%v", err)
			runner = nil
		}

		srv := mcp.NewServer(s, runner)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
