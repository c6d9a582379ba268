// Package verifier submits a deployed contract's source to a block explorer.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/mintdeploy/internal/chains"
	"github.com/pendergraft/mintdeploy/internal/chains/evm"
	"github.com/pendergraft/mintdeploy/internal/config"
	"github.com/pendergraft/mintdeploy/internal/contract"
	"github.com/pendergraft/mintdeploy/internal/deployments/domain"
	"github.com/pendergraft/mintdeploy/internal/explorer"
	"github.com/pendergraft/mintdeploy/internal/observability/metrics"
	"github.com/pendergraft/mintdeploy/internal/validation"
)

// ErrInvalidAddress is returned for malformed contract addresses.
var ErrInvalidAddress = errors.New("invalid contract address")

// CodeReader reads runtime bytecode.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Resolver provides the artifact and compiler input for a contract.
type Resolver interface {
	Factory(name string) (*contract.Factory, error)
	VerificationInput(f *contract.Factory) (*chains.VerificationInput, error)
}

// Submitter sends a verification request and waits for the verdict.
// *explorer.Client satisfies it.
type Submitter interface {
	Verify(ctx context.Context, req explorer.VerifyRequest) error
}

// Journal records verification results.
type Journal interface {
	MarkVerified(ctx context.Context, chainID int64, address string) error
}

// Request is one verification: the deployed address and the arguments the
// contract was constructed with.
type Request struct {
	Address string
	Args    contract.ConstructorArgs
}

// Verifier verifies deployments of one contract on one network.
type Verifier struct {
	code         CodeReader
	resolver     Resolver
	submitter    Submitter
	contractName string

	compiler config.CompilerConfig
	journal  Journal
	chainID  int64
	network  string
	logger   *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithCompiler sets the expected compiler settings. Mismatches with the
// artifact's build-info are logged, not fatal.
func WithCompiler(c config.CompilerConfig) Option {
	return func(v *Verifier) { v.compiler = c }
}

// WithJournal marks journaled deployments on chainID verified.
func WithJournal(j Journal, chainID int64) Option {
	return func(v *Verifier) {
		v.journal = j
		v.chainID = chainID
	}
}

// WithNetwork labels logs and metrics.
func WithNetwork(name string) Option {
	return func(v *Verifier) { v.network = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// New creates a Verifier for contractName.
func New(code CodeReader, resolver Resolver, submitter Submitter, contractName string, opts ...Option) *Verifier {
	v := &Verifier{
		code:         code,
		resolver:     resolver,
		submitter:    submitter,
		contractName: contractName,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify submits the contract at address, built with args, for source
// verification. An already-verified contract returns
// explorer.ErrAlreadyVerified.
func (v *Verifier) Verify(ctx context.Context, address string, args contract.ConstructorArgs) error {
	if err := validation.ValidateAddress(address); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}

	factory, err := v.resolver.Factory(v.contractName)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", v.contractName, err)
	}

	_, encoded, err := factory.Pack(args)
	if err != nil {
		return err
	}

	input, err := v.resolver.VerificationInput(factory)
	if err != nil {
		return err
	}
	v.checkCompiler(input)

	if err := v.checkCode(ctx, factory, address); err != nil {
		return err
	}

	v.logger.Info("verifying contract",
		slog.String("contract", factory.FullyQualifiedName()),
		slog.String("address", address),
		slog.String("compiler", input.SolcLongVersion),
	)

	err = v.submitter.Verify(ctx, explorer.VerifyRequest{
		Address:         address,
		ContractName:    factory.FullyQualifiedName(),
		CompilerVersion: input.SolcLongVersion,
		StandardJSON:    input.StandardJSON,
		ConstructorArgs: encoded,
	})

	switch {
	case err == nil:
		metrics.Verify(v.network, "verified")
		v.markVerified(ctx, address)
		return nil
	case errors.Is(err, explorer.ErrAlreadyVerified):
		metrics.Verify(v.network, "already_verified")
		v.markVerified(ctx, address)
		return err
	default:
		metrics.Verify(v.network, "failed")
		return fmt.Errorf("verifying %s at %s: %w", factory.Name(), address, err)
	}
}

// checkCompiler logs differences between configured and built settings.
func (v *Verifier) checkCompiler(input *chains.VerificationInput) {
	if v.compiler.Version != "" && !validation.SameCompilerVersion(v.compiler.Version, input.SolcLongVersion) {
		v.logger.Warn("artifact was built with a different compiler version",
			slog.String("configured", v.compiler.Version),
			slog.String("artifact", input.SolcLongVersion),
		)
	}

	opt, err := input.Optimizer()
	if err != nil {
		v.logger.Warn("could not read optimizer settings from build info", slog.String("error", err.Error()))
		return
	}
	if opt.Enabled != v.compiler.Optimizer || (opt.Enabled && opt.Runs != v.compiler.Runs) {
		v.logger.Warn("artifact optimizer settings differ from configuration",
			slog.Bool("configured_enabled", v.compiler.Optimizer),
			slog.Int("configured_runs", v.compiler.Runs),
			slog.Bool("artifact_enabled", opt.Enabled),
			slog.Int("artifact_runs", opt.Runs),
		)
	}
}

func (v *Verifier) checkCode(ctx context.Context, factory *contract.Factory, address string) error {
	code, err := v.code.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return fmt.Errorf("reading code at %s: %w", address, err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w at %s", chains.ErrNoBytecode, address)
	}

	result := evm.CompareBytecode(code, factory.DeployedBytecode)
	if !result.Match {
		v.logger.Warn("on-chain bytecode differs from artifact", slog.String("address", address), slog.String("detail", result.Message))
		return nil
	}
	v.logger.Debug("on-chain bytecode matches artifact", slog.String("match", result.MatchType))
	return nil
}

func (v *Verifier) markVerified(ctx context.Context, address string) {
	if v.journal == nil {
		return
	}
	err := v.journal.MarkVerified(ctx, v.chainID, address)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		v.logger.Debug("verified contract is not in the journal", slog.String("address", address))
	default:
		v.logger.Warn("failed to journal verification", slog.String("address", address), slog.String("error", err.Error()))
	}
}
