package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/mintdeploy/internal/config"
)

var errConfigExists = errors.New("config file already exists")

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var format string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a mintdeploy project file in the current directory.

The file defines the local Hardhat network, rinkeby and mainnet network
shapes, and a local and testnet environment. Secrets are referenced by
environment variable name and are read from .env.local at run time.

EXAMPLES:
  # Create mintdeploy.toml
  mintdeploy config init

  # Create mintdeploy.yaml instead
  mintdeploy config init --format yaml

  # Overwrite existing config
  mintdeploy config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), format, force)
		},
	}

	cmd.Flags().StringVar(&format, "format", "toml", "file format: toml or yaml")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display effective config",
		Long: `Display the configuration after defaults, .env.local and
MINTDEPLOY_* overrides are applied.

Secrets are never printed. The variables that hold them are listed with
whether they are set.

EXAMPLES:
  mintdeploy config show
  mintdeploy config show --format yaml
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "toml", "output format: toml or yaml")

	return cmd
}

// initialConfig is the project written by config init
func initialConfig() *config.Config {
	cfg := config.Default()
	cfg.Builder = "hardhat"

	args := []any{"MyCollection", "MYC", "ipfs://hidden/", "${DEVELOPER_ADDRESS}", 10000}
	cfg.Networks = map[string]config.NetworkConfig{
		config.DefaultNetwork: config.DefaultHardhatNetwork(),
		"rinkeby": {
			RPCURL:     "https://eth-rinkeby.alchemyapi.io/v2/${RINKEBY_ALCHEMY_API_KEY}",
			ChainID:    4,
			AccountEnv: "RINKEBY_ACCOUNT_PRIVATE_KEY",
			Explorer: &config.ExplorerConfig{
				APIURL:     "https://api-rinkeby.etherscan.io/api",
				BrowserURL: "https://rinkeby.etherscan.io",
				APIKeyEnv:  "ETHERSCAN_API_KEY",
			},
		},
		"mainnet": {
			RPCURL:     "https://eth-mainnet.alchemyapi.io/v2/${MAINNET_ALCHEMY_API_KEY}",
			ChainID:    1,
			AccountEnv: "MAINNET_ACCOUNT_PRIVATE_KEY",
			Explorer: &config.ExplorerConfig{
				APIURL:     "https://api.etherscan.io/api",
				BrowserURL: "https://etherscan.io",
				APIKeyEnv:  "ETHERSCAN_API_KEY",
			},
		},
	}
	cfg.Environments = map[string]config.EnvironmentConfig{
		"local":   {Network: config.DefaultNetwork, Args: args},
		"testnet": {Network: "rinkeby", Args: args},
	}
	return cfg
}

func runConfigInit(out io.Writer, format string, force bool) error {
	var configPath string
	switch format {
	case "toml":
		configPath = "mintdeploy.toml"
	case "yaml":
		configPath = "mintdeploy.yaml"
	default:
		return fmt.Errorf("unknown format %q (want toml or yaml)", format)
	}

	// Check if any config file already exists
	for _, name := range config.ProjectFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("%w at %s (use --force to overwrite)", errConfigExists, name)
		}
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# mintdeploy project configuration")
	fmt.Fprintln(f, "# Secrets are read from the variables named by *_env keys and ${VAR} references.")
	fmt.Fprintln(f)
	if err := encodeConfig(f, format, initialConfig()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Put DEVELOPER_ADDRESS and the private keys in .env.local")
	fmt.Fprintln(out, "  2. Start a node with 'npx hardhat node' and compile the contract")
	fmt.Fprintln(out, "  3. Run 'mintdeploy deploy local'")

	return nil
}

func runConfigShow(out io.Writer, format string) error {
	if format != "toml" && format != "yaml" {
		return fmt.Errorf("unknown format %q (want toml or yaml)", format)
	}

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	shown := *cfg
	shown.Journal.URL = redactURL(cfg.Journal.URL)

	fmt.Fprintf(out, "# Loaded from: %s\n", path)
	if err := encodeConfig(out, format, &shown); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "# Secret variables:")
	for _, name := range secretVariables(cfg) {
		if value := os.Getenv(name); value != "" {
			fmt.Fprintf(out, "#   %s=%s\n", name, maskSecret(value))
		} else {
			fmt.Fprintf(out, "#   %s=(not set)\n", name)
		}
	}

	return nil
}

func encodeConfig(w io.Writer, format string, cfg *config.Config) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return toml.NewEncoder(w).Encode(cfg)
}

// secretVariables lists the account and explorer key variables the networks reference
func secretVariables(cfg *config.Config) []string {
	seen := map[string]bool{}
	for _, n := range cfg.Networks {
		if n.AccountEnv != "" {
			seen[n.AccountEnv] = true
		}
		if n.Explorer != nil && n.Explorer.APIKeyEnv != "" {
			seen[n.Explorer.APIKeyEnv] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func maskSecret(s string) string {
	if len(s) <= 10 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
