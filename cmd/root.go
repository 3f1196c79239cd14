package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradeidea",
	Short: "AI trade-idea service with a position and risk calculator",
	Long: `tradeidea asks a language model for a trade idea, normalizes the answer into a
consistent entry/stop/target structure and sizes the position from account size
and risk percent.

Commands:
  serve        run the HTTP API
  size         compute a position size locally, no model call
  instruments  list the instrument table
  config       print the effective configuration`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, sizeCmd, instrumentsCmd, configCmd)
}
