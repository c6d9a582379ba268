package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/pendergraft/mintdeploy/internal/config"
	"github.com/pendergraft/mintdeploy/internal/runner"
)

func createCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <environment>",
		Short: "Compare deployed bytecode with the compiled artifact",
		Long: `Compare the runtime bytecode at the environment's address with the
artifact's deployed bytecode.

Compares the on-chain bytecode with the artifact, stripping CBOR metadata
for a partial match. Exits non-zero when the code does not match.

EXAMPLES:
  mintdeploy check testnet
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runCheck(ctx context.Context, out io.Writer, envName string) error {
	a, err := loadApp(ctx, envName, config.ModeCheck)
	if err != nil {
		return err
	}
	defer a.close()

	var journal runner.Journal
	if a.journal != nil {
		journal = a.journal
	}
	return runner.RunCheck(ctx, out, a.env, a.resolver, a.chain, journal)
}
