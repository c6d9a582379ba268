package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pendergraft/mintdeploy/internal/config"
	"github.com/pendergraft/mintdeploy/internal/deployer"
	"github.com/pendergraft/mintdeploy/internal/runner"
	"github.com/pendergraft/mintdeploy/internal/signer"
)

func createDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <environment>",
		Short: "Deploy the contract to an environment's network",
		Long: `Deploy the configured contract with the environment's constructor arguments.

The deployer key is read from the network's account_env variable (also
loaded from .env.local). When it is unset and stdin is a terminal, the key is
prompted for.

The broadcast transaction is recorded in the deployment journal before
waiting for it to be mined.

EXAMPLES:
  # Deploy to a local Hardhat node
  mintdeploy deploy local

  # Deploy to a testnet
  mintdeploy deploy testnet
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runDeploy(ctx context.Context, out io.Writer, envName string) error {
	a, err := loadApp(ctx, envName, config.ModeDeploy)
	if err != nil {
		return err
	}
	defer a.close()

	var prompt signer.Prompter
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = signer.NewTerminalPrompter()
	}
	s, err := signer.Load(a.env.Network.AccountEnv, prompt)
	if err != nil {
		return err
	}

	client, err := ethclient.DialContext(ctx, a.env.Network.RPCURL)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", a.env.NetworkName, err)
	}
	defer client.Close()

	opts := []deployer.Option{
		deployer.WithEnvironment(a.env.Name, a.env.NetworkName),
		deployer.WithLogger(a.logger),
	}
	if a.journal != nil {
		opts = append(opts, deployer.WithJournal(a.journal))
	}
	d := deployer.New(client, a.resolver, s, a.env.Network.ChainID, opts...)

	return runner.RunDeploy(ctx, out, a.env, d)
}
