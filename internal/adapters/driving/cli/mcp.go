package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/caseflow/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Let an MCP client invoke caseflow modules as --user",
	Long: `Serves caseflow's modules as MCP tools for one user. The server speaks
JSON-RPC over stdio unless --port is given, in which case it serves
streamable HTTP.

  caseflow mcp serve -u google.tenant.abc
  caseflow mcp serve -u google.tenant.abc --port 8080`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

var mcpPort int

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	user, err := requireUser()
	if err != nil {
		return err
	}
	server, err := mcp.NewServer(&mcp.Ports{Hub: s.Hub, Pipeline: s.Pipeline, UserID: user})
	if err != nil {
		return err
	}
	if mcpPort == 0 {
		return server.Run(cmd.Context())
	}
	addr := fmt.Sprintf(":%d", mcpPort)
	cmd.PrintErrf("MCP server for %s on http://localhost%s\n", user, addr)
	return server.RunHTTP(cmd.Context(), addr)
}
