package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployments; address and tx hash are not unique because a reset local chain reuses them
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY,
		seq BIGSERIAL NOT NULL,
		environment TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		contract_name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		deployer_address TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		block_number BIGINT NOT NULL DEFAULT 0,
		gas_used BIGINT NOT NULL DEFAULT 0,
		constructor_args TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_deployments_environment ON deployments(environment);
	CREATE INDEX IF NOT EXISTS idx_deployments_chain_address ON deployments(chain_id, lower(address));
	CREATE INDEX IF NOT EXISTS idx_deployments_seq ON deployments(seq);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating journal: %w", err)
	}
	s.logger.Debug("journal migrated", "driver", "postgres")
	return nil
}

// CreateDeployment inserts d, assigning an ID and timestamps when unset
func (s *PostgresStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO deployments (id, environment, network, chain_id, contract_name, address, deployer_address,
			tx_hash, block_number, gas_used, constructor_args, status, error, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Environment, d.Network, d.ChainID, d.ContractName, d.Address, d.DeployerAddress,
		d.TxHash, d.BlockNumber, d.GasUsed, d.ConstructorArgs, string(d.Status), d.Error, d.Verified,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

// UpdateDeployment stores the mutable fields of d
func (s *PostgresStore) UpdateDeployment(ctx context.Context, d *Deployment) error {
	d.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE deployments
		SET address = $1, block_number = $2, gas_used = $3, status = $4, error = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := s.db.ExecContext(ctx, query, d.Address, d.BlockNumber, d.GasUsed, string(d.Status), d.Error, d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// GetDeployment retrieves a deployment by ID
func (s *PostgresStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + `, seq FROM deployments WHERE id = $1`
	d, _, err := scanPostgresDeployment(s.db.QueryRowContext(ctx, query, id))
	return d, err
}

// FindDeployment returns the most recent deployment at address on chainID
func (s *PostgresStore) FindDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + `, seq FROM deployments
		WHERE chain_id = $1 AND lower(address) = lower($2)
		ORDER BY seq DESC LIMIT 1`
	d, _, err := scanPostgresDeployment(s.db.QueryRowContext(ctx, query, chainID, address))
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	where, args, err := buildDeploymentWhere(filter, pagination.Cursor, "seq", func(n int) string { return "$" + strconv.Itoa(n) })
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	args = append(args, limit+1)
	query := fmt.Sprintf(`SELECT %s, seq FROM deployments%s ORDER BY seq DESC LIMIT $%d`, deploymentColumns, where, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	var seqs []int64
	for rows.Next() {
		d, seq, err := scanPostgresDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &PaginatedResult[Deployment]{Data: deployments}
	if len(deployments) > limit {
		result.Data = deployments[:limit]
		result.HasMore = true
		result.NextCursor = strconv.FormatInt(seqs[limit-1], 10)
	}
	return result, nil
}

// MarkVerified flags a deployment as verified on the block explorer
func (s *PostgresStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET verified = TRUE, verified_at = $1, updated_at = NOW() WHERE id = $2`,
		at.UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanPostgresDeployment(row rowScanner) (*Deployment, int64, error) {
	var d Deployment
	var status string
	var verifiedAt sql.NullTime
	var seq int64

	err := row.Scan(
		&d.ID, &d.Environment, &d.Network, &d.ChainID, &d.ContractName, &d.Address, &d.DeployerAddress,
		&d.TxHash, &d.BlockNumber, &d.GasUsed, &d.ConstructorArgs, &status, &d.Error, &d.Verified,
		&verifiedAt, &d.CreatedAt, &d.UpdatedAt, &seq,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	d.Status = DeploymentStatus(status)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		d.VerifiedAt = &t
	}
	return &d, seq, nil
}
