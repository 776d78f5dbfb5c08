package cmd

import (
	"github.com/spf13/cobra"

	"github.com/devpilot-kr/devpilot/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients query devpilot natively for projects, issues,
and reschedule requests. Configure with:

  {
    "mcpServers": {
      "devpilot": { "command": "devpilot", "args": ["mcp"] }
    }
  }

Available tools: devpilot_list_projects, devpilot_list_issues,
devpilot_create_issue, devpilot_list_reschedules,
devpilot_create_reschedule, devpilot_resolve_reschedule`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newRescheduleService()
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}
		gh, err := newGitHubClient()
		if err != nil {
			return err
		}

		return mcp.NewServer(s, gh, svc).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
