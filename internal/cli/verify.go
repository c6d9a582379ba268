package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/pendergraft/mintdeploy/internal/config"
	"github.com/pendergraft/mintdeploy/internal/explorer"
	"github.com/pendergraft/mintdeploy/internal/runner"
	"github.com/pendergraft/mintdeploy/internal/verifier"
)

func createVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <environment>",
		Short: "Verify the deployed contract source on the block explorer",
		Long: `Submit the contract source for verification on the network's
Etherscan-compatible explorer and wait for the result.

The address comes from the environment's address setting, or from the most
recent confirmed deployment in the journal when unset. The constructor
arguments are the environment's args.

A contract that is already verified is reported as a failure.

EXAMPLES:
  mintdeploy verify testnet
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runVerify(ctx context.Context, out io.Writer, envName string) error {
	a, err := loadApp(ctx, envName, config.ModeVerify)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := ethclient.DialContext(ctx, a.env.Network.RPCURL)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", a.env.NetworkName, err)
	}
	defer client.Close()

	explorerCfg := a.env.Network.Explorer
	ex := explorer.New(explorerCfg.APIURL, a.env.ExplorerAPIKey(),
		explorer.WithChainID(a.env.Network.ChainID),
		explorer.WithPollInterval(a.env.PollInterval()),
		explorer.WithPollTimeout(a.env.PollTimeout()),
		explorer.WithRateLimit(explorerCfg.RequestsPerSecond),
		explorer.WithLogger(a.logger),
	)

	opts := []verifier.Option{
		verifier.WithCompiler(a.env.Compiler),
		verifier.WithNetwork(a.env.NetworkName),
		verifier.WithLogger(a.logger),
	}
	var journal runner.Journal
	if a.journal != nil {
		opts = append(opts, verifier.WithJournal(a.journal, a.env.Network.ChainID))
		journal = a.journal
	}
	v := verifier.New(client, a.resolver, ex, a.env.Contract, opts...)

	return runner.RunVerify(ctx, out, a.env, v, journal)
}
