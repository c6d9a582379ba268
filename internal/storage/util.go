package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// deploymentColumns is the select list shared by both stores; the
// store-specific sequence column is appended by each query.
const deploymentColumns = `id, environment, network, chain_id, contract_name, address, deployer_address,
	tx_hash, block_number, gas_used, constructor_args, status, error, verified, verified_at, created_at, updated_at`

// buildDeploymentWhere renders filter as a WHERE clause. placeholder returns
// the bind parameter for the n-th argument (1-based); seqColumn orders rows.
func buildDeploymentWhere(filter DeploymentFilter, cursor string, seqColumn string, placeholder func(n int) string) (string, []any, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if filter.Environment != "" {
		add("environment = %s", filter.Environment)
	}
	if filter.Network != "" {
		add("network = %s", filter.Network)
	}
	if filter.ChainID != 0 {
		add("chain_id = %s", filter.ChainID)
	}
	if filter.ContractName != "" {
		add("contract_name = %s", filter.ContractName)
	}
	if filter.Status != "" {
		add("status = %s", string(filter.Status))
	}
	if filter.Verified != nil {
		add("verified = %s", *filter.Verified)
	}
	if cursor != "" {
		seq, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		add(seqColumn+" < %s", seq)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// timestamps are stored as RFC 3339 text in SQLite
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// pageLimit clamps the requested page size
func pageLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}
