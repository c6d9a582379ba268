package domain

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pendergraft/mintdeploy/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	deployer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	address  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return NewService(store)
}

func pending(env string) PendingRequest {
	return PendingRequest{
		Environment:     env,
		Network:         "hardhat",
		ChainID:         1337,
		ContractName:    "ERC721AMinter",
		Address:         address,
		DeployerAddress: deployer,
		TxHash:          "0x01",
		ConstructorArgs: "0x",
	}
}

func TestRecordPendingThenConfirm(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	d, err := svc.RecordPending(ctx, pending("local"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	assert.NotEmpty(t, d.ID)

	// Pending records are not returned by Latest
	_, err = svc.Latest(ctx, "local", 1337, "ERC721AMinter")
	assert.ErrorIs(t, err, ErrNotFound)

	err = svc.MarkConfirmed(ctx, d.ID, Confirmation{Address: address, BlockNumber: 7, GasUsed: 123456})
	require.NoError(t, err)

	latest, err := svc.Latest(ctx, "local", 1337, "ERC721AMinter")
	require.NoError(t, err)
	assert.Equal(t, d.ID, latest.ID)
	assert.Equal(t, StatusConfirmed, latest.Status)
	assert.Equal(t, int64(7), latest.BlockNumber)
	assert.Equal(t, int64(123456), latest.GasUsed)
}

func TestLatestMatchesChainAndContract(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	confirm := func(req PendingRequest, addr string) {
		t.Helper()
		d, err := svc.RecordPending(ctx, req)
		require.NoError(t, err)
		require.NoError(t, svc.MarkConfirmed(ctx, d.ID, Confirmation{Address: addr, BlockNumber: 1}))
	}

	// testnet used to point at rinkeby and deploy another contract
	oldNetwork := pending("testnet")
	oldNetwork.Network, oldNetwork.ChainID, oldNetwork.Address = "rinkeby", 4, ""
	confirm(oldNetwork, "0x1111111111111111111111111111111111111111")

	otherContract := pending("testnet")
	otherContract.Network, otherContract.ChainID, otherContract.ContractName = "sepolia", 11155111, "OtherContract"
	otherContract.Address = ""
	confirm(otherContract, "0x2222222222222222222222222222222222222222")

	_, err := svc.Latest(ctx, "testnet", 11155111, "ERC721AMinter")
	assert.ErrorIs(t, err, ErrNotFound)

	current := pending("testnet")
	current.Network, current.ChainID, current.Address = "sepolia", 11155111, ""
	confirm(current, address)

	latest, err := svc.Latest(ctx, "testnet", 11155111, "ERC721AMinter")
	require.NoError(t, err)
	assert.Equal(t, address, latest.Address)
	assert.Equal(t, int64(11155111), latest.ChainID)
	assert.Equal(t, "ERC721AMinter", latest.ContractName)

	old, err := svc.Latest(ctx, "testnet", 4, "ERC721AMinter")
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", old.Address)

	_, err = svc.Latest(ctx, "testnet", 0, "ERC721AMinter")
	assert.ErrorIs(t, err, ErrInvalidChainID)
	_, err = svc.Latest(ctx, "testnet", 4, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRecordPendingValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(r *PendingRequest)
		wantErr error
	}{
		{"missing environment", func(r *PendingRequest) { r.Environment = "" }, ErrInvalidRequest},
		{"zero chain id", func(r *PendingRequest) { r.ChainID = 0 }, ErrInvalidChainID},
		{"bad address", func(r *PendingRequest) { r.Address = "0x123" }, ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := pending("local")
			tt.mutate(&req)
			_, err := svc.RecordPending(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMarkFailed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	d, err := svc.RecordPending(ctx, pending("local"))
	require.NoError(t, err)

	require.NoError(t, svc.MarkFailed(ctx, d.ID, errors.New("execution reverted")))

	got, err := svc.Get(ctx, 1337, address)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "execution reverted", got.Error)

	assert.ErrorIs(t, svc.MarkFailed(ctx, "00000000-0000-4000-8000-000000000000", nil), ErrNotFound)
}

func TestMarkVerified(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	d, err := svc.RecordPending(ctx, pending("testnet"))
	require.NoError(t, err)
	require.NoError(t, svc.MarkConfirmed(ctx, d.ID, Confirmation{Address: address, BlockNumber: 1}))

	fixed := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	svc.(*service).now = func() time.Time { return fixed }

	require.NoError(t, svc.MarkVerified(ctx, 1337, address))

	got, err := svc.Get(ctx, 1337, address)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	require.NotNil(t, got.VerifiedAt)
	assert.True(t, got.VerifiedAt.Equal(fixed))

	assert.ErrorIs(t, svc.MarkVerified(ctx, 1, address), ErrNotFound)
}

func TestList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, env := range []string{"local", "local", "testnet"} {
		_, err := svc.RecordPending(ctx, pending(env))
		require.NoError(t, err)
	}

	result, err := svc.List(ctx, ListFilter{Environment: "local"}, PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, result.Deployments, 2)
	assert.False(t, result.HasMore)

	result, err = svc.List(ctx, ListFilter{}, PaginationParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Deployments, 2)
	assert.True(t, result.HasMore)
	// Newest first
	assert.Equal(t, "testnet", result.Deployments[0].Environment)
}

func TestGetInvalidAddress(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), 1337, "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
