// Package storage persists the deployment journal in SQLite or PostgreSQL.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/mintdeploy/internal/config"
)

// DeploymentStore handles deployment journal operations
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, d *Deployment) error
	UpdateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	FindDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
}

// Store combines the journal operations with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	DeploymentStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// DeploymentStatus is the lifecycle state of a journaled deployment
type DeploymentStatus string

const (
	StatusPending   DeploymentStatus = "pending"   // broadcast, not yet mined
	StatusConfirmed DeploymentStatus = "confirmed" // mined with code at the address
	StatusFailed    DeploymentStatus = "failed"    // reverted or abandoned
)

// Deployment is one broadcast contract creation
type Deployment struct {
	ID              string
	Environment     string
	Network         string
	ChainID         int64
	ContractName    string
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     int64
	GasUsed         int64
	ConstructorArgs string // ABI-encoded, 0x-prefixed
	Status          DeploymentStatus
	Error           string
	Verified        bool
	VerifiedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	Environment  string
	Network      string
	ChainID      int64
	ContractName string
	Status       DeploymentStatus
	Verified     *bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration. Relative sqlite paths are
// used as given; callers resolve them against the project directory.
func New(cfg config.JournalConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.URL, logger)
	case "none", "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
