// Package deployer broadcasts contract creation transactions and waits for
// them to be mined.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/mintdeploy/internal/contract"
	"github.com/pendergraft/mintdeploy/internal/deployments/domain"
	"github.com/pendergraft/mintdeploy/internal/observability/metrics"
)

// Errors returned by Deploy.
var (
	ErrChainIDMismatch    = errors.New("RPC chain id does not match configured chain id")
	ErrDeploymentReverted = errors.New("deployment transaction reverted")
)

// Backend is the chain access a deployment needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// FactoryResolver resolves contract names to factories.
type FactoryResolver interface {
	Factory(name string) (*contract.Factory, error)
}

// TxSigner signs deployment transactions.
type TxSigner interface {
	Address() common.Address
	TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)
}

// Journal records broadcast deployments. domain.Service satisfies it.
type Journal interface {
	RecordPending(ctx context.Context, req domain.PendingRequest) (*domain.Deployment, error)
	MarkConfirmed(ctx context.Context, id string, c domain.Confirmation) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// Result describes a mined deployment with code at its address.
type Result struct {
	Contract        string
	Address         common.Address
	TxHash          common.Hash
	BlockNumber     uint64
	Deployer        common.Address
	GasUsed         uint64
	ChainID         int64
	ConstructorArgs []byte
	JournalID       string
}

// Deployer deploys contracts from one account to one chain.
type Deployer struct {
	backend  Backend
	resolver FactoryResolver
	signer   TxSigner
	chainID  int64

	journal     Journal
	environment string
	network     string
	gasLimit    uint64
	logger      *slog.Logger
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithJournal records every broadcast in j.
func WithJournal(j Journal) Option {
	return func(d *Deployer) { d.journal = j }
}

// WithEnvironment labels journal records and metrics.
func WithEnvironment(environment, network string) Option {
	return func(d *Deployer) {
		d.environment = environment
		d.network = network
	}
}

// WithGasLimit skips gas estimation and uses limit.
func WithGasLimit(limit uint64) Option {
	return func(d *Deployer) { d.gasLimit = limit }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deployer) { d.logger = logger }
}

// New creates a Deployer for the chain with the configured chainID.
func New(backend Backend, resolver FactoryResolver, signer TxSigner, chainID int64, opts ...Option) *Deployer {
	d := &Deployer{
		backend:  backend,
		resolver: resolver,
		signer:   signer,
		chainID:  chainID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy resolves contractName, binds args to its constructor and broadcasts
// the creation transaction. It returns once the receipt is mined with status
// success and code exists at the new address. Nothing is retried.
func (d *Deployer) Deploy(ctx context.Context, contractName string, args contract.ConstructorArgs) (*Result, error) {
	factory, err := d.resolver.Factory(contractName)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", contractName, err)
	}

	// Argument errors surface here, before anything is signed
	converted, encoded, err := factory.Pack(args)
	if err != nil {
		return nil, err
	}

	if err := d.checkChainID(ctx); err != nil {
		return nil, err
	}

	opts, err := d.signer.TransactOpts(ctx, big.NewInt(d.chainID))
	if err != nil {
		return nil, err
	}
	opts.GasLimit = d.gasLimit

	d.logger.Info("deploying contract",
		slog.String("contract", factory.FullyQualifiedName()),
		slog.String("network", d.network),
		slog.String("deployer", d.signer.Address().Hex()),
	)

	address, tx, _, err := bind.DeployContract(opts, factory.ABI, factory.Bytecode, d.backend, converted...)
	if err != nil {
		metrics.Deploy(d.network, factory.Name(), "failed")
		return nil, fmt.Errorf("sending deployment transaction: %w", err)
	}
	start := time.Now()

	d.logger.Info("deployment transaction sent",
		slog.String("tx", tx.Hash().Hex()),
		slog.String("address", address.Hex()),
	)

	journalID := d.recordPending(ctx, factory, address, tx, encoded)

	receipt, err := d.waitDeployed(ctx, address, tx)
	if err != nil {
		status := "failed"
		if errors.Is(err, ErrDeploymentReverted) {
			status = "reverted"
		}
		metrics.Deploy(d.network, factory.Name(), status)
		// A cancelled wait leaves the transaction live; keep it pending
		if ctx.Err() == nil {
			d.markFailed(ctx, journalID, err)
		}
		return nil, err
	}

	metrics.Deploy(d.network, factory.Name(), "confirmed")
	metrics.DeployConfirmed(d.network, factory.Name(), time.Since(start), receipt.GasUsed)

	d.markConfirmed(ctx, journalID, address, receipt)

	return &Result{
		Contract:        factory.Name(),
		Address:         address,
		TxHash:          tx.Hash(),
		BlockNumber:     receipt.BlockNumber.Uint64(),
		Deployer:        d.signer.Address(),
		GasUsed:         receipt.GasUsed,
		ChainID:         d.chainID,
		ConstructorArgs: encoded,
		JournalID:       journalID,
	}, nil
}

func (d *Deployer) checkChainID(ctx context.Context) error {
	got, err := d.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("querying chain id: %w", err)
	}
	if got.Cmp(big.NewInt(d.chainID)) != 0 {
		return fmt.Errorf("%w: rpc reports %s, configured %d", ErrChainIDMismatch, got, d.chainID)
	}
	return nil
}

func (d *Deployer) waitDeployed(ctx context.Context, address common.Address, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s in block %s", ErrDeploymentReverted, tx.Hash().Hex(), receipt.BlockNumber)
	}

	code, err := d.backend.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("reading code at %s: %w", address.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s", bind.ErrNoCodeAfterDeploy, address.Hex())
	}
	return receipt, nil
}

// Journal writes never fail a deployment: the transaction is already live.

func (d *Deployer) recordPending(ctx context.Context, f *contract.Factory, address common.Address, tx *types.Transaction, encoded []byte) string {
	if d.journal == nil {
		return ""
	}
	rec, err := d.journal.RecordPending(ctx, domain.PendingRequest{
		Environment:     d.environment,
		Network:         d.network,
		ChainID:         d.chainID,
		ContractName:    f.Name(),
		Address:         address.Hex(),
		DeployerAddress: d.signer.Address().Hex(),
		TxHash:          tx.Hash().Hex(),
		ConstructorArgs: hexutil.Encode(encoded),
	})
	if err != nil {
		d.logger.Warn("failed to journal pending deployment", slog.String("tx", tx.Hash().Hex()), slog.String("error", err.Error()))
		return ""
	}
	return rec.ID
}

func (d *Deployer) markConfirmed(ctx context.Context, id string, address common.Address, receipt *types.Receipt) {
	if d.journal == nil || id == "" {
		return
	}
	err := d.journal.MarkConfirmed(ctx, id, domain.Confirmation{
		Address:     address.Hex(),
		BlockNumber: receipt.BlockNumber.Int64(),
		GasUsed:     int64(receipt.GasUsed),
	})
	if err != nil {
		d.logger.Warn("failed to journal confirmation", slog.String("id", id), slog.String("error", err.Error()))
	}
}

func (d *Deployer) markFailed(ctx context.Context, id string, cause error) {
	if d.journal == nil || id == "" {
		return
	}
	if err := d.journal.MarkFailed(ctx, id, cause); err != nil {
		d.logger.Warn("failed to journal failure", slog.String("id", id), slog.String("error", err.Error()))
	}
}
