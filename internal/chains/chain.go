// Package chains provides the chain module interfaces used to resolve
// compiled contracts and compare them against on-chain code.
package chains

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors returned by builders.
var (
	ErrContractNotFound  = errors.New("contract not found in artifacts")
	ErrAmbiguousContract = errors.New("contract name is ambiguous")
	ErrNoBytecode        = errors.New("contract has no bytecode")
	ErrBuildInfoNotFound = errors.New("build-info not found")
	ErrNoBuilder         = errors.New("no supported builder detected")
)

// Chain represents a blockchain ecosystem (currently only EVM)
type Chain interface {
	// Metadata
	Name() string        // "evm"
	DisplayName() string // "Ethereum/EVM"

	// Builder discovery
	DetectBuilder(dir string) (Builder, error)
	Builder(name string) (Builder, bool)
	Builders() []Builder

	// Verification
	VerifyDeployment(ctx context.Context, opts VerifyOptions) (*VerifyResult, error)
	GetDeployedBytecode(ctx context.Context, rpc string, address string) ([]byte, error)
}

// Builder reads artifacts produced by a specific build tool
type Builder interface {
	// Metadata
	Name() string        // "hardhat", "foundry"
	DisplayName() string // "Hardhat", "Foundry"
	Chain() string       // "evm"

	// Detection
	Detect(dir string) (bool, error)
	ConfigFile() string // "hardhat.config.ts", "foundry.toml"

	// Artifact handling
	Resolve(dir string, contractName string) (*Artifact, error)
	VerificationInput(dir string, artifact *Artifact) (*VerificationInput, error)
}

// VerifyOptions configures an on-chain bytecode comparison
type VerifyOptions struct {
	RPC          string
	Address      string
	ExpectedCode []byte
}

// VerifyResult contains bytecode comparison results
type VerifyResult struct {
	Match     bool   // Whether the bytecode matches
	MatchType string // "full", "partial", "none"
	Message   string // Human-readable explanation
}

// Artifact is a compiled contract
type Artifact struct {
	Name  string `json:"name"`
	Chain string `json:"chain"`

	EVM *EVMArtifact `json:"evm,omitempty"`
}

// FullyQualifiedName returns "sourcePath:Name", the form block explorers expect.
func (a *Artifact) FullyQualifiedName() string {
	if a.EVM == nil || a.EVM.SourcePath == "" {
		return a.Name
	}
	return a.EVM.SourcePath + ":" + a.Name
}

// EVMArtifact contains EVM-specific contract data
type EVMArtifact struct {
	SourcePath       string          `json:"sourcePath"`
	License          string          `json:"license,omitempty"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	Compiler         EVMCompiler     `json:"compiler"`

	// ArtifactPath and BuildInfoPath locate the files the artifact was read from.
	ArtifactPath  string `json:"artifactPath,omitempty"`
	BuildInfoPath string `json:"buildInfoPath,omitempty"`
}

// EVMCompiler contains EVM compiler details
type EVMCompiler struct {
	Version    string          `json:"version"` // "0.8.9+commit.e5eed63a"
	Optimizer  OptimizerConfig `json:"optimizer"`
	EVMVersion string          `json:"evmVersion"`
	ViaIR      bool            `json:"viaIR"`
}

// OptimizerConfig contains optimizer settings
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// VerificationInput is what a block explorer needs to recompile a contract.
type VerificationInput struct {
	StandardJSON    []byte // Solidity standard JSON input
	SolcLongVersion string // "0.8.9+commit.e5eed63a"
}

// Optimizer reads the optimizer settings out of the standard JSON input.
func (v *VerificationInput) Optimizer() (OptimizerConfig, error) {
	var input struct {
		Settings struct {
			Optimizer OptimizerConfig `json:"optimizer"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(v.StandardJSON, &input); err != nil {
		return OptimizerConfig{}, fmt.Errorf("parsing standard JSON input: %w", err)
	}
	return input.Settings.Optimizer, nil
}

// SplitFullyQualifiedName splits "contracts/Foo.sol:Foo" into its source path
// and contract name. A bare name returns an empty source path.
func SplitFullyQualifiedName(name string) (sourcePath, contractName string) {
	idx := strings.LastIndex(name, ":")
	if idx == -1 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}

// Registry holds all registered chain modules
type Registry struct {
	chains map[string]Chain
}

// NewRegistry creates a new chain registry
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[string]Chain),
	}
}

// Register adds a chain module to the registry
func (r *Registry) Register(c Chain) {
	r.chains[c.Name()] = c
}

// Get retrieves a chain module by name
func (r *Registry) Get(name string) (Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// List returns all registered chain modules sorted by name
func (r *Registry) List() []Chain {
	chains := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Name() < chains[j].Name() })
	return chains
}

// FindBuilder returns the builder with the given name from any registered chain
func (r *Registry) FindBuilder(name string) (Chain, Builder, error) {
	for _, chain := range r.List() {
		if b, ok := chain.Builder(name); ok {
			return chain, b, nil
		}
	}
	return nil, nil, fmt.Errorf("unknown builder %q", name)
}

// DetectChainAndBuilder detects the chain and builder for a project directory
func (r *Registry) DetectChainAndBuilder(dir string) (Chain, Builder, error) {
	for _, chain := range r.List() {
		builder, err := chain.DetectBuilder(dir)
		if err == nil && builder != nil {
			return chain, builder, nil
		}
	}
	return nil, nil, fmt.Errorf("%w in %s", ErrNoBuilder, dir)
}
