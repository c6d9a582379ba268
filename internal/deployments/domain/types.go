package domain

import (
	"time"
)

// Status mirrors the journal lifecycle of a deployment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Deployment represents a journaled deployment.
type Deployment struct {
	ID              string     `json:"id"`
	Environment     string     `json:"environment"`
	Network         string     `json:"network"`
	ChainID         int64      `json:"chainId"`
	ContractName    string     `json:"contractName"`
	Address         string     `json:"address,omitempty"`
	DeployerAddress string     `json:"deployerAddress,omitempty"`
	TxHash          string     `json:"txHash,omitempty"`
	BlockNumber     int64      `json:"blockNumber,omitempty"`
	GasUsed         int64      `json:"gasUsed,omitempty"`
	ConstructorArgs string     `json:"constructorArgs,omitempty"`
	Status          Status     `json:"status"`
	Error           string     `json:"error,omitempty"`
	Verified        bool       `json:"verified"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// PendingRequest describes a broadcast transaction that has not been mined.
type PendingRequest struct {
	Environment     string
	Network         string
	ChainID         int64
	ContractName    string
	Address         string // predicted from deployer nonce
	DeployerAddress string
	TxHash          string
	ConstructorArgs string // ABI-encoded, 0x-prefixed
}

// Confirmation carries receipt data for a mined deployment.
type Confirmation struct {
	Address     string
	BlockNumber int64
	GasUsed     int64
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	Environment string
	Network     string
	ChainID     int64
	Status      Status
	Verified    *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment `json:"deployments"`
	HasMore     bool         `json:"hasMore"`
	NextCursor  string       `json:"nextCursor,omitempty"`
}
