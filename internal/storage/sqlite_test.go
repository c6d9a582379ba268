package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "journal", "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestSQLiteStore(t *testing.T) {
	testStore(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// testStore exercises the journal contract against any Store implementation.
func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("CreateAndGetDeployment", func(t *testing.T) {
		d := &Deployment{
			Environment:     "testnet",
			Network:         "sepolia",
			ChainID:         11155111,
			ContractName:    "ERC721AMinter",
			DeployerAddress: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			TxHash:          "0xabc",
			ConstructorArgs: "0x00",
			Status:          StatusPending,
		}
		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment() error = %v", err)
		}
		if d.ID == "" {
			t.Fatal("CreateDeployment() did not assign an ID")
		}

		got, err := store.GetDeployment(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetDeployment() error = %v", err)
		}
		if got.ContractName != d.ContractName {
			t.Errorf("GetDeployment().ContractName = %v, want %v", got.ContractName, d.ContractName)
		}
		if got.Status != StatusPending {
			t.Errorf("GetDeployment().Status = %v, want %v", got.Status, StatusPending)
		}
		if got.ChainID != 11155111 {
			t.Errorf("GetDeployment().ChainID = %v, want 11155111", got.ChainID)
		}
		if got.Verified || got.VerifiedAt != nil {
			t.Errorf("new deployment should not be verified")
		}
	})

	t.Run("GetDeploymentNotFound", func(t *testing.T) {
		_, err := store.GetDeployment(ctx, "6f1c7c58-0000-4000-8000-000000000000")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetDeployment() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateAndFindDeployment", func(t *testing.T) {
		d := &Deployment{
			Environment:  "mainnet",
			Network:      "mainnet",
			ChainID:      1,
			ContractName: "ERC721AMinter",
			TxHash:       "0xdef",
			Status:       StatusPending,
		}
		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment() error = %v", err)
		}

		d.Address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		d.BlockNumber = 42
		d.GasUsed = 1_500_000
		d.Status = StatusConfirmed
		if err := store.UpdateDeployment(ctx, d); err != nil {
			t.Fatalf("UpdateDeployment() error = %v", err)
		}

		// Lookup is case-insensitive on the address
		got, err := store.FindDeployment(ctx, 1, "0x5fbdb2315678afecb367f032d93f642f64180aa3")
		if err != nil {
			t.Fatalf("FindDeployment() error = %v", err)
		}
		if got.ID != d.ID {
			t.Errorf("FindDeployment().ID = %v, want %v", got.ID, d.ID)
		}
		if got.BlockNumber != 42 || got.GasUsed != 1_500_000 {
			t.Errorf("FindDeployment() block/gas = %d/%d, want 42/1500000", got.BlockNumber, got.GasUsed)
		}

		if _, err := store.FindDeployment(ctx, 5, d.Address); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindDeployment() on other chain error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateUnknownDeployment", func(t *testing.T) {
		d := &Deployment{ID: "6f1c7c58-0000-4000-8000-000000000001", Status: StatusFailed}
		if err := store.UpdateDeployment(ctx, d); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateDeployment() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("MarkVerified", func(t *testing.T) {
		d := &Deployment{
			Environment:  "verify",
			Network:      "sepolia",
			ChainID:      11155111,
			ContractName: "ERC721AMinter",
			Address:      "0x0000000000000000000000000000000000000001",
			Status:       StatusConfirmed,
		}
		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment() error = %v", err)
		}

		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		if err := store.MarkVerified(ctx, d.ID, at); err != nil {
			t.Fatalf("MarkVerified() error = %v", err)
		}

		got, err := store.GetDeployment(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetDeployment() error = %v", err)
		}
		if !got.Verified {
			t.Error("GetDeployment().Verified = false, want true")
		}
		if got.VerifiedAt == nil || !got.VerifiedAt.Equal(at) {
			t.Errorf("GetDeployment().VerifiedAt = %v, want %v", got.VerifiedAt, at)
		}

		if err := store.MarkVerified(ctx, "6f1c7c58-0000-4000-8000-000000000002", at); !errors.Is(err, ErrNotFound) {
			t.Errorf("MarkVerified() unknown id error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListDeploymentsPaginates", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			d := &Deployment{
				Environment:  "paged",
				Network:      "hardhat",
				ChainID:      1337,
				ContractName: "ERC721AMinter",
				Status:       StatusConfirmed,
			}
			if err := store.CreateDeployment(ctx, d); err != nil {
				t.Fatalf("CreateDeployment() error = %v", err)
			}
		}

		filter := DeploymentFilter{Environment: "paged"}
		first, err := store.ListDeployments(ctx, filter, PaginationParams{Limit: 3})
		if err != nil {
			t.Fatalf("ListDeployments() error = %v", err)
		}
		if len(first.Data) != 3 || !first.HasMore || first.NextCursor == "" {
			t.Fatalf("first page = %d items, hasMore=%v, cursor=%q", len(first.Data), first.HasMore, first.NextCursor)
		}

		second, err := store.ListDeployments(ctx, filter, PaginationParams{Limit: 3, Cursor: first.NextCursor})
		if err != nil {
			t.Fatalf("ListDeployments() error = %v", err)
		}
		if len(second.Data) != 2 || second.HasMore {
			t.Fatalf("second page = %d items, hasMore=%v", len(second.Data), second.HasMore)
		}

		seen := map[string]bool{}
		for _, d := range append(first.Data, second.Data...) {
			if seen[d.ID] {
				t.Errorf("deployment %s listed twice", d.ID)
			}
			seen[d.ID] = true
		}
	})

	t.Run("ListDeploymentsFilters", func(t *testing.T) {
		verified := true
		result, err := store.ListDeployments(ctx, DeploymentFilter{Verified: &verified}, PaginationParams{})
		if err != nil {
			t.Fatalf("ListDeployments() error = %v", err)
		}
		if len(result.Data) != 1 || result.Data[0].Environment != "verify" {
			t.Errorf("verified filter returned %d deployments", len(result.Data))
		}

		result, err = store.ListDeployments(ctx, DeploymentFilter{Status: StatusPending}, PaginationParams{})
		if err != nil {
			t.Fatalf("ListDeployments() error = %v", err)
		}
		for _, d := range result.Data {
			if d.Status != StatusPending {
				t.Errorf("status filter returned %s deployment", d.Status)
			}
		}
	})

	t.Run("ListDeploymentsInvalidCursor", func(t *testing.T) {
		if _, err := store.ListDeployments(ctx, DeploymentFilter{}, PaginationParams{Cursor: "abc"}); err == nil {
			t.Error("ListDeployments() with invalid cursor should fail")
		}
	})
}
