package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pendergraft/mintdeploy/internal/contract"
	"github.com/pendergraft/mintdeploy/internal/validation"
)

// ErrUnknownEnvironment is returned for environment names missing from the project file.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Mode selects which settings ValidateFor requires
type Mode string

const (
	ModeDeploy Mode = "deploy"
	ModeVerify Mode = "verify"
	ModeCheck  Mode = "check"
)

// ${VAR} references; a bare $ is left alone so literal prices or URIs survive
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment is the resolved, read-only view of one environment
type Environment struct {
	Name        string
	NetworkName string
	Network     NetworkConfig
	Contract    string
	Compiler    CompilerConfig

	args    contract.ConstructorArgs
	address string
	missing []string
}

// Environment resolves name against the configured networks and expands
// ${VAR} references in the RPC URL, address and string arguments
func (c *Config) Environment(name string) (*Environment, error) {
	envCfg, ok := c.Environments[name]
	if !ok {
		known := c.EnvironmentNames()
		if len(known) == 0 {
			return nil, fmt.Errorf("%w %q (no environments configured)", ErrUnknownEnvironment, name)
		}
		return nil, fmt.Errorf("%w %q (configured: %s)", ErrUnknownEnvironment, name, strings.Join(known, ", "))
	}

	network, ok := c.Networks[envCfg.Network]
	if !ok {
		return nil, fmt.Errorf("environment %q: unknown network %q", name, envCfg.Network)
	}

	missing := map[string]bool{}
	expand := func(s string) string {
		return envRef.ReplaceAllStringFunc(s, func(ref string) string {
			key := envRef.FindStringSubmatch(ref)[1]
			value, ok := os.LookupEnv(key)
			if !ok || value == "" {
				missing[key] = true
			}
			return value
		})
	}

	network.RPCURL = expand(network.RPCURL)
	if network.Explorer != nil {
		explorer := *network.Explorer
		explorer.APIURL = expand(explorer.APIURL)
		network.Explorer = &explorer
	}

	env := &Environment{
		Name:        name,
		NetworkName: envCfg.Network,
		Network:     network,
		Contract:    c.Contract,
		Compiler:    c.Compiler,
		args:        expandArgs(envCfg.Args, expand),
		address:     expand(envCfg.Address),
	}
	for key := range missing {
		env.missing = append(env.missing, key)
	}
	sort.Strings(env.missing)

	return env, nil
}

func expandArgs(args []any, expand func(string) string) contract.ConstructorArgs {
	out := make(contract.ConstructorArgs, len(args))
	for i, arg := range args {
		out[i] = expandValue(arg, expand)
	}
	return out
}

func expandValue(v any, expand func(string) string) any {
	switch val := v.(type) {
	case string:
		return expand(val)
	case []any:
		return []any(expandArgs(val, expand))
	default:
		return v
	}
}

// PassArgs returns a copy of the constructor arguments in declaration order
func (e *Environment) PassArgs() contract.ConstructorArgs {
	return expandArgs(e.args, func(s string) string { return s })
}

// PassAddress returns the configured deployed address, or "" when unset
func (e *Environment) PassAddress() string {
	return e.address
}

// MissingVariables lists ${VAR} references with no value in the environment
func (e *Environment) MissingVariables() []string {
	return append([]string(nil), e.missing...)
}

// ExplorerAPIKey returns the explorer API key from the network's api_key_env variable
func (e *Environment) ExplorerAPIKey() string {
	if e.Network.Explorer == nil || e.Network.Explorer.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.Network.Explorer.APIKeyEnv)
}

// PollInterval returns the explorer status poll interval
func (e *Environment) PollInterval() time.Duration {
	if e.Network.Explorer == nil {
		return 0
	}
	return time.Duration(e.Network.Explorer.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the maximum time spent waiting for explorer verification
func (e *Environment) PollTimeout() time.Duration {
	if e.Network.Explorer == nil {
		return 0
	}
	return time.Duration(e.Network.Explorer.PollTimeoutSeconds) * time.Second
}

// ValidateFor checks that everything mode needs is present
func (e *Environment) ValidateFor(mode Mode) error {
	var errs []error

	if len(e.missing) > 0 {
		errs = append(errs, fmt.Errorf("environment %q references unset variables: %s", e.Name, strings.Join(e.missing, ", ")))
	}
	if strings.TrimSpace(e.Network.RPCURL) == "" {
		errs = append(errs, fmt.Errorf("network %q: rpc_url is empty", e.NetworkName))
	}
	if err := validation.ValidateChainID(e.Network.ChainID); err != nil {
		errs = append(errs, fmt.Errorf("network %q: %w", e.NetworkName, err))
	}

	switch mode {
	case ModeDeploy:
	case ModeVerify:
		if e.Network.Explorer == nil || e.Network.Explorer.APIURL == "" {
			errs = append(errs, fmt.Errorf("network %q: no explorer configured for verification", e.NetworkName))
		} else if e.ExplorerAPIKey() == "" {
			errs = append(errs, fmt.Errorf("network %q: explorer API key not set (%s)", e.NetworkName, e.Network.Explorer.APIKeyEnv))
		}
	case ModeCheck:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", mode))
	}

	if mode != ModeDeploy && e.address != "" {
		if err := validation.ValidateAddress(e.address); err != nil {
			errs = append(errs, fmt.Errorf("environment %q address: %w", e.Name, err))
		}
	}

	return errors.Join(errs...)
}
