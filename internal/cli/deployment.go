package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/mintdeploy/internal/deployments/domain"
)

func createDeploymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deployment"},
		Short:   "Deployment journal commands",
	}

	cmd.AddCommand(createDeploymentListCmd())
	cmd.AddCommand(createDeploymentInfoCmd())

	return cmd
}

type listOptions struct {
	env        string
	network    string
	chainID    int64
	status     string
	verified   *bool
	limit      int
	cursor     string
	jsonOutput bool
}

func createDeploymentListCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled deployments",
		Long: `List deployments recorded in the journal, newest first.

EXAMPLES:
  # List all deployments
  mintdeploy deployments list

  # Filter by environment
  mintdeploy deployments list --env testnet

  # Show only verified deployments
  mintdeploy deployments list --verified

  # Fetch the next page
  mintdeploy deployments list --cursor 42
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploymentList(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.env, "env", "", "filter by environment")
	cmd.Flags().StringVar(&opts.network, "network", "", "filter by network")
	cmd.Flags().Int64Var(&opts.chainID, "chain-id", 0, "filter by chain ID")
	cmd.Flags().StringVar(&opts.status, "status", "", "filter by status: pending, confirmed, failed")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "number of items to show")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")

	// Handle --verified flag
	var verifiedFlag bool
	cmd.Flags().BoolVar(&verifiedFlag, "verified", false, "show only verified deployments")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("verified") {
			opts.verified = &verifiedFlag
		}
		return nil
	}

	return cmd
}

func createDeploymentInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <chain-id> <address>",
		Short: "Show deployment details",
		Long: `Display the most recent journal entry for an address.

EXAMPLES:
  mintdeploy deployments info 11155111 0x5FbDB2315678afecb367f032d93F642f64180aa3
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %q", domain.ErrInvalidChainID, args[0])
			}
			return runDeploymentInfo(cmd.Context(), cmd.OutOrStdout(), chainID, args[1], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// openJournalService opens the journal without resolving an environment
func openJournalService(ctx context.Context) (domain.Service, func(), error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := setupLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	store, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("deployment journal is disabled (journal.type = \"none\")")
	}
	return domain.NewService(store), func() { store.Close() }, nil
}

func runDeploymentList(ctx context.Context, out io.Writer, opts listOptions) error {
	journal, closeJournal, err := openJournalService(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	filter := domain.ListFilter{
		Environment: opts.env,
		Network:     opts.network,
		ChainID:     opts.chainID,
		Status:      domain.Status(opts.status),
		Verified:    opts.verified,
	}
	result, err := journal.List(ctx, filter, domain.PaginationParams{Limit: opts.limit, Cursor: opts.cursor})
	if err != nil {
		return fmt.Errorf("listing deployments: %w", err)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Deployments) == 0 {
		fmt.Fprintln(out, "No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENV\tNETWORK\tADDRESS\tCONTRACT\tSTATUS\tVERIFIED\tCREATED")
	for _, d := range result.Deployments {
		verifiedStr := "no"
		if d.Verified {
			verifiedStr = "yes"
		}
		address := d.Address
		if address == "" {
			address = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Environment, d.Network, truncateAddress(address), d.ContractName, d.Status, verifiedStr,
			d.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()

	if result.HasMore {
		fmt.Fprintf(out, "\n(showing %d deployments, more with --cursor %s)\n", len(result.Deployments), result.NextCursor)
	}

	return nil
}

func runDeploymentInfo(ctx context.Context, out io.Writer, chainID int64, address string, jsonOutput bool) error {
	journal, closeJournal, err := openJournalService(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	d, err := journal.Get(ctx, chainID, address)
	if err != nil {
		return fmt.Errorf("getting deployment: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	fmt.Fprintf(out, "Deployment:  %s\n", d.Address)
	fmt.Fprintf(out, "Contract:    %s\n", d.ContractName)
	fmt.Fprintf(out, "Environment: %s\n", d.Environment)
	fmt.Fprintf(out, "Network:     %s (chain %d)\n", d.Network, d.ChainID)
	fmt.Fprintf(out, "Status:      %s\n", d.Status)
	if d.Error != "" {
		fmt.Fprintf(out, "Error:       %s\n", d.Error)
	}
	if d.TxHash != "" {
		fmt.Fprintf(out, "Tx Hash:     %s\n", d.TxHash)
	}
	if d.DeployerAddress != "" {
		fmt.Fprintf(out, "Deployer:    %s\n", d.DeployerAddress)
	}
	if d.BlockNumber > 0 {
		fmt.Fprintf(out, "Block:       %d\n", d.BlockNumber)
	}
	if d.GasUsed > 0 {
		fmt.Fprintf(out, "Gas Used:    %d\n", d.GasUsed)
	}
	if d.ConstructorArgs != "" {
		fmt.Fprintf(out, "Args:        %s\n", d.ConstructorArgs)
	}
	fmt.Fprintf(out, "Verified:    %v\n", d.Verified)
	if d.VerifiedAt != nil {
		fmt.Fprintf(out, "Verified At: %s\n", d.VerifiedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "Recorded:    %s\n", d.CreatedAt.Local().Format("2006-01-02 15:04:05"))

	return nil
}

func truncateAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
