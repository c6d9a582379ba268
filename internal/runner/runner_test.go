package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/mintdeploy/internal/chains"
	"github.com/pendergraft/mintdeploy/internal/config"
	"github.com/pendergraft/mintdeploy/internal/contract"
	"github.com/pendergraft/mintdeploy/internal/deployer"
	"github.com/pendergraft/mintdeploy/internal/deployments/domain"
	"github.com/pendergraft/mintdeploy/internal/explorer"
	"github.com/pendergraft/mintdeploy/internal/storage"
)

const (
	deployedAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testnetAddress  = "0xdeF0000000000000000000000000000000000001"
	developer       = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

var wantArgs = contract.ConstructorArgs{"MyCollection", "MYC", "ipfs://hidden", developer, int64(10000)}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Networks = map[string]config.NetworkConfig{
		"hardhat": config.DefaultHardhatNetwork(),
		"sepolia": {
			RPCURL:  "https://rpc.sepolia.example",
			ChainID: 11155111,
			Explorer: &config.ExplorerConfig{
				APIURL:     "https://api-sepolia.etherscan.io/api",
				BrowserURL: "https://sepolia.etherscan.io/",
			},
		},
	}
	args := []any{"MyCollection", "MYC", "ipfs://hidden", developer, int64(10000)}
	cfg.Environments = map[string]config.EnvironmentConfig{
		"local":   {Network: "hardhat", Args: args},
		"testnet": {Network: "sepolia", Address: testnetAddress, Args: args},
	}
	return cfg
}

func environment(t *testing.T, name string) *config.Environment {
	t.Helper()
	env, err := testConfig().Environment(name)
	require.NoError(t, err)
	return env
}

type fakeDeployer struct {
	err      error
	gotName  string
	gotArgs  contract.ConstructorArgs
	calls    int
	deployed common.Address
}

func (f *fakeDeployer) Deploy(_ context.Context, name string, args contract.ConstructorArgs) (*deployer.Result, error) {
	f.calls++
	f.gotName, f.gotArgs = name, args
	if f.err != nil {
		return nil, f.err
	}
	return &deployer.Result{Contract: name, Address: f.deployed}, nil
}

type fakeVerifier struct {
	err     error
	gotAddr string
	gotArgs contract.ConstructorArgs
	calls   int
}

func (f *fakeVerifier) Verify(_ context.Context, address string, args contract.ConstructorArgs) error {
	f.calls++
	f.gotAddr, f.gotArgs = address, args
	return f.err
}

type fakeJournal struct {
	latest *domain.Deployment
	err    error

	gotEnv      string
	gotChainID  int64
	gotContract string
}

func (f *fakeJournal) Latest(_ context.Context, env string, chainID int64, contractName string) (*domain.Deployment, error) {
	f.gotEnv, f.gotChainID, f.gotContract = env, chainID, contractName
	if f.err != nil {
		return nil, f.err
	}
	if f.latest == nil {
		return nil, domain.ErrNotFound
	}
	return f.latest, nil
}

// Scenario 1: local deploy prints the address and exits 0
func TestRunDeploy_Local(t *testing.T) {
	d := &fakeDeployer{deployed: common.HexToAddress(deployedAddress)}
	var out bytes.Buffer

	err := RunDeploy(context.Background(), &out, environment(t, "local"), d)

	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))
	assert.Equal(t, "ERC721AMinter", d.gotName)
	assert.Equal(t, wantArgs, d.gotArgs)
	assert.Equal(t, "ERC721AMinter deployed to: "+deployedAddress+"\n", out.String())
}

// Scenario 2: a deploy failure propagates unchanged and exits 1
func TestRunDeploy_InsufficientFunds(t *testing.T) {
	d := &fakeDeployer{err: core.ErrInsufficientFunds}
	var out bytes.Buffer

	err := RunDeploy(context.Background(), &out, environment(t, "local"), d)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.Equal(t, 1, ExitCode(err))
	assert.Empty(t, out.String())
	assert.Equal(t, 1, d.calls, "deploy is never retried")
}

// Scenario 3: testnet verify passes the configured address and args
func TestRunVerify_Testnet(t *testing.T) {
	v := &fakeVerifier{}
	var out bytes.Buffer

	err := RunVerify(context.Background(), &out, environment(t, "testnet"), v, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))
	assert.Equal(t, testnetAddress, v.gotAddr)
	assert.Equal(t, wantArgs, v.gotArgs)
	assert.Contains(t, out.String(), "Successfully verified ERC721AMinter at "+testnetAddress)
	assert.Contains(t, out.String(), "https://sepolia.etherscan.io/address/"+testnetAddress+"#code")
}

// Scenario 4: already verified is a failure
func TestRunVerify_AlreadyVerified(t *testing.T) {
	v := &fakeVerifier{err: explorer.ErrAlreadyVerified}
	var out bytes.Buffer

	err := RunVerify(context.Background(), &out, environment(t, "testnet"), v, nil)

	assert.ErrorIs(t, err, explorer.ErrAlreadyVerified)
	assert.Equal(t, 1, ExitCode(err))
	assert.Empty(t, out.String())
}

func TestRunVerify_AddressFromJournal(t *testing.T) {
	v := &fakeVerifier{}
	journal := &fakeJournal{latest: &domain.Deployment{Address: deployedAddress, Status: domain.StatusConfirmed}}

	err := RunVerify(context.Background(), &bytes.Buffer{}, environment(t, "local"), v, journal)

	require.NoError(t, err)
	assert.Equal(t, deployedAddress, v.gotAddr)
	assert.Equal(t, "local", journal.gotEnv)
	assert.Equal(t, int64(1337), journal.gotChainID)
	assert.Equal(t, "ERC721AMinter", journal.gotContract)
}

func TestRunVerify_JournalFromOtherChain(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	journal := domain.NewService(store)

	// local was last deployed to a node with another chain ID
	d, err := journal.RecordPending(ctx, domain.PendingRequest{
		Environment:  "local",
		Network:      "hardhat",
		ChainID:      31337,
		ContractName: "ERC721AMinter",
	})
	require.NoError(t, err)
	require.NoError(t, journal.MarkConfirmed(ctx, d.ID, domain.Confirmation{Address: deployedAddress}))

	v := &fakeVerifier{}
	err = RunVerify(ctx, &bytes.Buffer{}, environment(t, "local"), v, journal)

	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Equal(t, 1, ExitCode(err))
	assert.Zero(t, v.calls)
}

func TestRunVerify_NoAddress(t *testing.T) {
	tests := []struct {
		name    string
		journal Journal
		wantErr error
	}{
		{"no journal", nil, ErrNoAddress},
		{"empty journal", &fakeJournal{}, ErrNoAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{}
			err := RunVerify(context.Background(), &bytes.Buffer{}, environment(t, "local"), v, tt.journal)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, v.calls)
		})
	}

	t.Run("journal error", func(t *testing.T) {
		v := &fakeVerifier{}
		err := RunVerify(context.Background(), &bytes.Buffer{}, environment(t, "local"), v, &fakeJournal{err: errors.New("locked")})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoAddress)
	})
}

type fakeResolver struct{}

func (fakeResolver) Factory(name string) (*contract.Factory, error) {
	return contract.NewFactory(&chains.Artifact{
		Name:  name,
		Chain: "evm",
		EVM: &chains.EVMArtifact{
			SourcePath:       "contracts/ERC721AMinter.sol",
			ABI:              json.RawMessage(`[]`),
			Bytecode:         "0x6001600c60003960016000f300",
			DeployedBytecode: "0x00",
		},
	})
}

type fakeChecker struct {
	result *chains.VerifyResult
	opts   chains.VerifyOptions
}

func (f *fakeChecker) VerifyDeployment(_ context.Context, opts chains.VerifyOptions) (*chains.VerifyResult, error) {
	f.opts = opts
	return f.result, nil
}

func TestRunCheck(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		checker := &fakeChecker{result: &chains.VerifyResult{Match: true, MatchType: "full", Message: "exact"}}
		var out bytes.Buffer

		err := RunCheck(context.Background(), &out, environment(t, "testnet"), fakeResolver{}, checker, nil)

		require.NoError(t, err)
		assert.Equal(t, testnetAddress, checker.opts.Address)
		assert.Equal(t, "https://rpc.sepolia.example", checker.opts.RPC)
		assert.Equal(t, []byte{0x00}, checker.opts.ExpectedCode)
		assert.Contains(t, out.String(), "full match")
	})

	t.Run("mismatch", func(t *testing.T) {
		checker := &fakeChecker{result: &chains.VerifyResult{Match: false, MatchType: "none"}}
		err := RunCheck(context.Background(), &bytes.Buffer{}, environment(t, "testnet"), fakeResolver{}, checker, nil)
		assert.ErrorIs(t, err, ErrBytecodeMismatch)
		assert.Equal(t, 1, ExitCode(err))
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 1, ExitCode(context.Canceled))
}
