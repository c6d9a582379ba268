// Package evm provides the EVM chain module for Ethereum and compatible chains.
package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/mintdeploy/internal/chains"
)

// Chain implements the chains.Chain interface for EVM-compatible blockchains
type Chain struct {
	builders []chains.Builder
}

// NewChain creates a new EVM chain module
func NewChain() *Chain {
	return &Chain{
		builders: []chains.Builder{
			NewHardhatBuilder(),
			NewFoundryBuilder(),
		},
	}
}

// Name returns the chain identifier
func (c *Chain) Name() string {
	return "evm"
}

// DisplayName returns a human-readable name
func (c *Chain) DisplayName() string {
	return "Ethereum/EVM"
}

// Builders returns all available builders for this chain
func (c *Chain) Builders() []chains.Builder {
	return c.builders
}

// Builder returns the builder registered under name
func (c *Chain) Builder(name string) (chains.Builder, bool) {
	for _, b := range c.builders {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// DetectBuilder detects which builder is used in the given directory
func (c *Chain) DetectBuilder(dir string) (chains.Builder, error) {
	for _, b := range c.builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no EVM builder detected in %s", dir)
}

// VerifyDeployment compares the code deployed at opts.Address with the expected runtime bytecode
func (c *Chain) VerifyDeployment(ctx context.Context, opts chains.VerifyOptions) (*chains.VerifyResult, error) {
	deployed, err := c.GetDeployedBytecode(ctx, opts.RPC, opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployed bytecode: %w", err)
	}
	if len(deployed) == 0 {
		return nil, fmt.Errorf("%w at %s", chains.ErrNoBytecode, opts.Address)
	}

	return CompareBytecode(deployed, opts.ExpectedCode), nil
}

// GetDeployedBytecode fetches the runtime bytecode at address with eth_getCode
func (c *Chain) GetDeployedBytecode(ctx context.Context, rpc string, address string) ([]byte, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	client, err := ethclient.DialContext(ctx, rpc)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", rpc, err)
	}
	defer client.Close()

	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getCode: %w", err)
	}
	return code, nil
}
