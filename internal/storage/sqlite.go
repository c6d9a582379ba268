package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode so a concurrent `deployments list` does not block a deploy
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployments; address and tx hash are not unique because a reset local chain reuses them
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		environment TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		contract_name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		deployer_address TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		block_number INTEGER NOT NULL DEFAULT 0,
		gas_used INTEGER NOT NULL DEFAULT 0,
		constructor_args TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		verified INTEGER NOT NULL DEFAULT 0,
		verified_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_deployments_environment ON deployments(environment);
	CREATE INDEX IF NOT EXISTS idx_deployments_chain_address ON deployments(chain_id, address);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating journal: %w", err)
	}
	s.logger.Debug("journal migrated", "driver", "sqlite")
	return nil
}

// CreateDeployment inserts d, assigning an ID and timestamps when unset
func (s *SQLiteStore) CreateDeployment(ctx context.Context, d *Deployment) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Environment, d.Network, d.ChainID, d.ContractName, d.Address, d.DeployerAddress,
		d.TxHash, d.BlockNumber, d.GasUsed, d.ConstructorArgs, string(d.Status), d.Error, d.Verified,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	return err
}

// UpdateDeployment stores the mutable fields of d
func (s *SQLiteStore) UpdateDeployment(ctx context.Context, d *Deployment) error {
	d.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE deployments
		SET address = ?, block_number = ?, gas_used = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, d.Address, d.BlockNumber, d.GasUsed, string(d.Status), d.Error, formatTime(d.UpdatedAt), d.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// GetDeployment retrieves a deployment by ID
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + `, rowid FROM deployments WHERE id = ?`
	d, _, err := s.scanDeployment(s.db.QueryRowContext(ctx, query, id))
	return d, err
}

// FindDeployment returns the most recent deployment at address on chainID
func (s *SQLiteStore) FindDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + `, rowid FROM deployments
		WHERE chain_id = ? AND lower(address) = lower(?)
		ORDER BY rowid DESC LIMIT 1`
	d, _, err := s.scanDeployment(s.db.QueryRowContext(ctx, query, chainID, address))
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	where, args, err := buildDeploymentWhere(filter, pagination.Cursor, "rowid", func(int) string { return "?" })
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	query := `SELECT ` + deploymentColumns + `, rowid FROM deployments` + where + ` ORDER BY rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit+1)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	var seqs []int64
	for rows.Next() {
		d, seq, err := s.scanDeployment(rows)
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
func (s *SQLiteStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET verified = 1, verified_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanDeployment(row rowScanner) (*Deployment, int64, error) {
	var d Deployment
	var status, createdAt, updatedAt string
	var verifiedAt sql.NullString
	var seq int64

	err := row.Scan(
		&d.ID, &d.Environment, &d.Network, &d.ChainID, &d.ContractName, &d.Address, &d.DeployerAddress,
		&d.TxHash, &d.BlockNumber, &d.GasUsed, &d.ConstructorArgs, &status, &d.Error, &d.Verified,
		&verifiedAt, &createdAt, &updatedAt, &seq,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	d.Status = DeploymentStatus(status)
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, 0, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, 0, err
	}
	if verifiedAt.Valid {
		t, err := parseTime(verifiedAt.String)
		if err != nil {
			return nil, 0, err
		}
		d.VerifiedAt = &t
	}
	return &d, seq, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
