// Package config loads the mintdeploy project file (TOML or YAML), applies
// defaults and environment overrides, and exposes per-environment views.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/mintdeploy/internal/validation"
)

// ErrNotFound is returned when no project file exists.
var ErrNotFound = errors.New("no mintdeploy config file found")

// ProjectFiles is the search order for project config files
var ProjectFiles = []string{"mintdeploy.toml", "mintdeploy.yaml", "mintdeploy.yml"}

// DefaultNetwork is the local Hardhat node network
const DefaultNetwork = "hardhat"

// Config is the project configuration
type Config struct {
	Contract     string                       `toml:"contract" yaml:"contract"`
	Builder      string                       `toml:"builder,omitempty" yaml:"builder,omitempty"` // "hardhat", "foundry" or "" to detect
	ProjectDir   string                       `toml:"project_dir" yaml:"project_dir"`
	EnvFile      string                       `toml:"env_file" yaml:"env_file"`
	Compiler     CompilerConfig               `toml:"compiler" yaml:"compiler"`
	Networks     map[string]NetworkConfig     `toml:"networks" yaml:"networks"`
	Environments map[string]EnvironmentConfig `toml:"environments" yaml:"environments"`
	Journal      JournalConfig                `toml:"journal" yaml:"journal"`
	Logging      LoggingConfig                `toml:"logging" yaml:"logging"`
	Metrics      MetricsConfig                `toml:"metrics" yaml:"metrics"`
}

// CompilerConfig holds the solc settings the contract is expected to be built with
type CompilerConfig struct {
	Version   string `toml:"version" yaml:"version"`
	Optimizer bool   `toml:"optimizer" yaml:"optimizer"`
	Runs      int    `toml:"runs" yaml:"runs"`
}

// NetworkConfig holds connection settings for one chain
type NetworkConfig struct {
	RPCURL     string          `toml:"rpc_url" yaml:"rpc_url"`
	ChainID    int64           `toml:"chain_id" yaml:"chain_id"`
	AccountEnv string          `toml:"account_env,omitempty" yaml:"account_env,omitempty"` // env var holding the deployer private key
	Explorer   *ExplorerConfig `toml:"explorer,omitempty" yaml:"explorer,omitempty"`
}

// ExplorerConfig holds Etherscan-compatible API settings
type ExplorerConfig struct {
	APIURL              string  `toml:"api_url" yaml:"api_url"`
	BrowserURL          string  `toml:"browser_url,omitempty" yaml:"browser_url,omitempty"`
	APIKeyEnv           string  `toml:"api_key_env" yaml:"api_key_env"`
	PollIntervalSeconds int     `toml:"poll_interval_seconds,omitempty" yaml:"poll_interval_seconds,omitempty"`
	PollTimeoutSeconds  int     `toml:"poll_timeout_seconds,omitempty" yaml:"poll_timeout_seconds,omitempty"`
	RequestsPerSecond   float64 `toml:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
}

// EnvironmentConfig binds an environment name to a network and constructor arguments
type EnvironmentConfig struct {
	Network string `toml:"network" yaml:"network"`
	Address string `toml:"address,omitempty" yaml:"address,omitempty"` // deployed address, used by verify
	Args    []any  `toml:"args" yaml:"args"`
}

// JournalConfig holds deployment journal storage settings
type JournalConfig struct {
	Type string `toml:"type" yaml:"type"` // "sqlite", "postgres" or "none"
	Path string `toml:"path,omitempty" yaml:"path,omitempty"`
	URL  string `toml:"url,omitempty" yaml:"url,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "text" or "json"
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	Textfile string `toml:"textfile,omitempty" yaml:"textfile,omitempty"` // node_exporter textfile collector path
}

// Default returns the configuration used for keys absent from the project file
func Default() *Config {
	return &Config{
		Contract:   "ERC721AMinter",
		ProjectDir: ".",
		EnvFile:    ".env.local",
		Compiler: CompilerConfig{
			Version:   "0.8.9",
			Optimizer: true,
			Runs:      200,
		},
		Journal: JournalConfig{
			Type: "sqlite",
			Path: filepath.Join(".mintdeploy", "deployments.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultHardhatNetwork is the local node started by `npx hardhat node`
func DefaultHardhatNetwork() NetworkConfig {
	return NetworkConfig{
		RPCURL:     "http://127.0.0.1:8545",
		ChainID:    1337,
		AccountEnv: "LOCAL_ACCOUNT_PRIVATE_KEY",
	}
}

// Load locates and decodes the project file. An explicit path wins, then
// MINTDEPLOY_CONFIG, then ProjectFiles in the working directory. It returns
// the config and the path it was loaded from.
func Load(path string) (*Config, string, error) {
	if path == "" {
		path = os.Getenv("MINTDEPLOY_CONFIG")
	}
	if path == "" {
		for _, name := range ProjectFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path == "" {
		return nil, "", ErrNotFound
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFile decodes the project file at path, loads its dotenv file and applies
// environment overrides
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("parsing TOML: unknown keys: %s", strings.Join(keys, ", "))
		}
	}

	// Relative paths are relative to the config file
	if !filepath.IsAbs(cfg.ProjectDir) {
		cfg.ProjectDir = filepath.Join(filepath.Dir(path), cfg.ProjectDir)
	}

	cfg.applyDefaults()
	if err := LoadEnvFile(cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Networks == nil {
		c.Networks = make(map[string]NetworkConfig)
	}
	if _, ok := c.Networks[DefaultNetwork]; !ok {
		c.Networks[DefaultNetwork] = DefaultHardhatNetwork()
	}
	for name, n := range c.Networks {
		if n.Explorer != nil {
			if n.Explorer.PollIntervalSeconds == 0 {
				n.Explorer.PollIntervalSeconds = 5
			}
			if n.Explorer.PollTimeoutSeconds == 0 {
				n.Explorer.PollTimeoutSeconds = 120
			}
			if n.Explorer.RequestsPerSecond == 0 {
				n.Explorer.RequestsPerSecond = 4
			}
			c.Networks[name] = n
		}
	}
	if c.Environments == nil {
		c.Environments = make(map[string]EnvironmentConfig)
	}
}

// applyEnv applies overrides from the process environment
func (c *Config) applyEnv() {
	c.Logging.Level = getEnv("MINTDEPLOY_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("MINTDEPLOY_LOG_FORMAT", c.Logging.Format)

	c.Journal.Type = getEnv("MINTDEPLOY_JOURNAL", c.Journal.Type)
	c.Journal.Path = getEnv("MINTDEPLOY_JOURNAL_PATH", c.Journal.Path)
	c.Journal.URL = getEnv("DATABASE_URL", c.Journal.URL)

	// If DATABASE_URL is set, default to postgres
	if c.Journal.URL != "" && c.Journal.Type == "sqlite" && os.Getenv("MINTDEPLOY_JOURNAL") == "" {
		c.Journal.Type = "postgres"
	}

	c.Metrics.Enabled = getEnvBool("MINTDEPLOY_METRICS", c.Metrics.Enabled)
	if textfile := getEnv("MINTDEPLOY_METRICS_TEXTFILE", ""); textfile != "" {
		c.Metrics.Textfile = textfile
		c.Metrics.Enabled = true
	}
}

// JournalPath returns the sqlite journal path resolved against the project directory
func (c *Config) JournalPath() string {
	if c.Journal.Path == "" || filepath.IsAbs(c.Journal.Path) {
		return c.Journal.Path
	}
	return filepath.Join(c.ProjectDir, c.Journal.Path)
}

// EnvironmentNames returns the configured environment names, sorted
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the configuration as a whole. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if err := validation.ValidateContractName(c.Contract); err != nil {
		errs = append(errs, fmt.Errorf("contract: %w", err))
	}
	switch c.Builder {
	case "", "hardhat", "foundry":
	default:
		errs = append(errs, fmt.Errorf("builder: unknown builder %q (want hardhat or foundry)", c.Builder))
	}

	if err := validation.ValidateCompilerVersion(c.Compiler.Version); err != nil {
		errs = append(errs, fmt.Errorf("compiler.version: %w", err))
	}
	if c.Compiler.Runs < 0 {
		errs = append(errs, errors.New("compiler.runs: must not be negative"))
	}

	for _, name := range sortedKeys(c.Networks) {
		n := c.Networks[name]
		if strings.TrimSpace(n.RPCURL) == "" {
			errs = append(errs, fmt.Errorf("networks.%s.rpc_url: required", name))
		}
		if err := validation.ValidateChainID(n.ChainID); err != nil {
			errs = append(errs, fmt.Errorf("networks.%s.chain_id: %w", name, err))
		}
		if n.Explorer != nil {
			if n.Explorer.APIURL == "" {
				errs = append(errs, fmt.Errorf("networks.%s.explorer.api_url: required", name))
			}
			if n.Explorer.PollIntervalSeconds < 0 || n.Explorer.PollTimeoutSeconds < 0 || n.Explorer.RequestsPerSecond < 0 {
				errs = append(errs, fmt.Errorf("networks.%s.explorer: intervals and rates must not be negative", name))
			}
		}
	}

	for _, name := range c.EnvironmentNames() {
		env := c.Environments[name]
		if err := validation.ValidateEnvironmentName(name); err != nil {
			errs = append(errs, fmt.Errorf("environments.%s: %w", name, err))
		}
		if _, ok := c.Networks[env.Network]; !ok {
			errs = append(errs, fmt.Errorf("environments.%s.network: unknown network %q", name, env.Network))
		}
		for i, arg := range env.Args {
			if err := checkScalarOrList(arg); err != nil {
				errs = append(errs, fmt.Errorf("environments.%s.args[%d]: %w", name, i, err))
			}
		}
		if env.Address != "" && !strings.Contains(env.Address, "${") {
			if err := validation.ValidateAddress(env.Address); err != nil {
				errs = append(errs, fmt.Errorf("environments.%s.address: %w", name, err))
			}
		}
	}

	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.Path == "" {
			errs = append(errs, errors.New("journal.path: required for sqlite"))
		}
	case "postgres":
		if c.Journal.URL == "" {
			errs = append(errs, errors.New("journal.url: required for postgres (or set DATABASE_URL)"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("journal.type: unknown type %q", c.Journal.Type))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// checkScalarOrList rejects tables/maps in constructor arguments
func checkScalarOrList(v any) error {
	switch val := v.(type) {
	case map[string]any, map[any]any:
		return errors.New("tables are not supported as constructor arguments")
	case []any:
		for i, elem := range val {
			if err := checkScalarOrList(elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
