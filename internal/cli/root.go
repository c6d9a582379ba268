// Package cli implements the mintdeploy command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// Execute runs the CLI
func Execute(ctx context.Context, version string, args []string) error {
	rootCmd := newRootCmd(version)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mintdeploy",
		Short: "Deploy and verify the ERC721AMinter contract",
		Long: `mintdeploy deploys a compiled contract to an EVM network using
constructor arguments from a per-environment project file, and verifies its
source on an Etherscan-compatible block explorer.`,
		Version: version,
		// main logs the returned error once
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: mintdeploy.toml, mintdeploy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")

	// Add subcommands
	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createCheckCmd())
	rootCmd.AddCommand(createDeploymentCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}
