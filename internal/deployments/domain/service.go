// Package domain contains the business logic for the deployment journal.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pendergraft/mintdeploy/internal/observability/metrics"
	"github.com/pendergraft/mintdeploy/internal/storage"
	"github.com/pendergraft/mintdeploy/internal/validation"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound       = errors.New("deployment not found")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidChainID = errors.New("invalid chain ID")
	ErrInvalidRequest = errors.New("invalid deployment record")
)

// Service defines the deployment journal interface.
type Service interface {
	// RecordPending journals a broadcast transaction before it is mined.
	RecordPending(ctx context.Context, req PendingRequest) (*Deployment, error)

	// MarkConfirmed stores receipt data for a mined deployment.
	MarkConfirmed(ctx context.Context, id string, c Confirmation) error

	// MarkFailed records why a journaled deployment did not complete.
	MarkFailed(ctx context.Context, id string, cause error) error

	// Get retrieves the most recent deployment at an address.
	Get(ctx context.Context, chainID int64, address string) (*Deployment, error)

	// Latest returns the newest confirmed deployment of contractName for an
	// environment on chainID.
	Latest(ctx context.Context, environment string, chainID int64, contractName string) (*Deployment, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// MarkVerified flags the deployment at an address as explorer-verified.
	MarkVerified(ctx context.Context, chainID int64, address string) error
}

// service implements the Service interface.
type service struct {
	store storage.DeploymentStore
	now   func() time.Time
}

// NewService creates a new deployment service.
func NewService(store storage.DeploymentStore) Service {
	return &service{store: store, now: time.Now}
}

// RecordPending journals a broadcast transaction before it is mined.
func (s *service) RecordPending(ctx context.Context, req PendingRequest) (*Deployment, error) {
	if req.Environment == "" || req.ContractName == "" {
		return nil, fmt.Errorf("%w: environment and contract are required", ErrInvalidRequest)
	}
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}
	if req.Address != "" {
		if err := validation.ValidateAddress(req.Address); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
	}

	d := &storage.Deployment{
		Environment:     req.Environment,
		Network:         req.Network,
		ChainID:         req.ChainID,
		ContractName:    req.ContractName,
		Address:         req.Address,
		DeployerAddress: req.DeployerAddress,
		TxHash:          req.TxHash,
		ConstructorArgs: req.ConstructorArgs,
		Status:          storage.StatusPending,
	}
	if err := s.store.CreateDeployment(ctx, d); err != nil {
		metrics.JournalWrite("error")
		return nil, fmt.Errorf("recording deployment: %w", err)
	}
	metrics.JournalWrite(string(storage.StatusPending))

	return toDeployment(d), nil
}

// MarkConfirmed stores receipt data for a mined deployment.
func (s *service) MarkConfirmed(ctx context.Context, id string, c Confirmation) error {
	if err := validation.ValidateAddress(c.Address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return s.update(ctx, id, func(d *storage.Deployment) {
		d.Address = c.Address
		d.BlockNumber = c.BlockNumber
		d.GasUsed = c.GasUsed
		d.Status = storage.StatusConfirmed
		d.Error = ""
	})
}

// MarkFailed records why a journaled deployment did not complete.
func (s *service) MarkFailed(ctx context.Context, id string, cause error) error {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return s.update(ctx, id, func(d *storage.Deployment) {
		d.Status = storage.StatusFailed
		d.Error = reason
	})
}

func (s *service) update(ctx context.Context, id string, apply func(d *storage.Deployment)) error {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("getting deployment: %w", err)
	}

	apply(d)
	if err := s.store.UpdateDeployment(ctx, d); err != nil {
		metrics.JournalWrite("error")
		return fmt.Errorf("updating deployment: %w", err)
	}
	metrics.JournalWrite(string(d.Status))
	return nil
}

// Get retrieves the most recent deployment at an address.
func (s *service) Get(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	d, err := s.store.FindDeployment(ctx, chainID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(d), nil
}

// Latest returns the newest confirmed deployment of contractName for an
// environment on chainID. Records from a previous network or contract of the
// same environment are never returned.
func (s *service) Latest(ctx context.Context, environment string, chainID int64, contractName string) (*Deployment, error) {
	if environment == "" || contractName == "" {
		return nil, fmt.Errorf("%w: environment and contract are required", ErrInvalidRequest)
	}
	if err := validation.ValidateChainID(chainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		Environment:  environment,
		ChainID:      chainID,
		ContractName: contractName,
		Status:       storage.StatusConfirmed,
	}, storage.PaginationParams{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, ErrNotFound
	}
	return toDeployment(&result.Data[0]), nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		Environment: filter.Environment,
		Network:     filter.Network,
		ChainID:     filter.ChainID,
		Status:      storage.DeploymentStatus(filter.Status),
		Verified:    filter.Verified,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i := range result.Data {
		deployments[i] = *toDeployment(&result.Data[i])
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

// MarkVerified flags the deployment at an address as explorer-verified.
func (s *service) MarkVerified(ctx context.Context, chainID int64, address string) error {
	d, err := s.store.FindDeployment(ctx, chainID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("getting deployment: %w", err)
	}

	if err := s.store.MarkVerified(ctx, d.ID, s.now().UTC()); err != nil {
		metrics.JournalWrite("error")
		return fmt.Errorf("updating verification status: %w", err)
	}
	metrics.JournalWrite("verified")
	return nil
}

func toDeployment(d *storage.Deployment) *Deployment {
	return &Deployment{
		ID:              d.ID,
		Environment:     d.Environment,
		Network:         d.Network,
		ChainID:         d.ChainID,
		ContractName:    d.ContractName,
		Address:         d.Address,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		GasUsed:         d.GasUsed,
		ConstructorArgs: d.ConstructorArgs,
		Status:          Status(d.Status),
		Error:           strings.TrimSpace(d.Error),
		Verified:        d.Verified,
		VerifiedAt:      d.VerifiedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
