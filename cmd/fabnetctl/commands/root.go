// Package commands implements the fabnetctl CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

// Global flags.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fabnetctl",
	Short: "fabnetctl - fabnet client demonstration harness",
	Long: `fabnetctl opens a fabnet catalog, transfer manager, and gateway from a
config file and exposes basic file operations against them: put, get, ls,
rm, mkdir. It is a demonstration of the client library, not a server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once to rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fabnet.yaml)")

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mkdirCmd)
}
