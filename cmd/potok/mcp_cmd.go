package main

import (
	"github.com/fentz26/potok/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve Potok tools over the Model Context Protocol",
	Long: `Runs an MCP server on stdin/stdout. Assistants can then distribute tasks,
ask for the Most Important Task and reschedule through the daemon API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpserver.Serve(apiClient(), userID)
	},
}
