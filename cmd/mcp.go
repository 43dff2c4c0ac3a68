package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/eightd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients read and edit problems and their 5-Why trees with
the same validation and status rules as the CLI and REST API. Configure
a client with:

  {
    "mcpServers": {
      "eightd": { "command": "eightd", "args": ["mcp"] }
    }
  }

Available tools: eightd_list_problems, eightd_get_problem,
eightd_create_problem, eightd_update_problem, eightd_root_cause_tree,
eightd_add_why, eightd_update_why, eightd_delete_why

Logs are written to stderr; stdout carries only protocol messages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(ui.ErrOut, viper.GetString("log.level"), viper.GetString("log.format"))
		if err != nil {
			return err
		}
		svc, err := getService(logger, nil)
		if err != nil {
			return err
		}
		defer func() { _ = dataStore.Close() }()

		logger.Debug("serving MCP on stdio", "db_path", viper.GetString("db_path"))
		return mcp.NewServer(svc, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
