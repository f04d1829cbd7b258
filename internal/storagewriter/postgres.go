package storagewriter

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// DefaultPostgresTable is used when PostgresConfig.Table is empty.
const DefaultPostgresTable = "watched_storage"

// PostgresConfig holds the connection settings of the Postgres writer.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

func (c PostgresConfig) table() string {
	if c.Table == "" {
		return DefaultPostgresTable
	}
	return c.Table
}

// PostgresWriter inserts one row per watched storage change. Each insert runs
// in its own implicit transaction, so a row is committed once
// WriteStorageNode returns. The single connection it owns is not safe for
// concurrent use and is guarded by mu.
type PostgresWriter struct {
	cfg     PostgresConfig
	watched WatchList

	insertStmt string

	mu   sync.Mutex
	conn *pgx.Conn
}

// NewPostgresWriter connects to cfg.DSN and makes sure the target table
// exists.
func NewPostgresWriter(ctx context.Context, cfg PostgresConfig, watched []common.Address) (*PostgresWriter, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres storage writer: empty dsn")
	}

	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	table := pq.QuoteIdentifier(cfg.table())
	createTableStmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id            BIGSERIAL PRIMARY KEY,
	contract      TEXT   NOT NULL,
	block_hash    TEXT   NOT NULL,
	block_number  BIGINT NOT NULL,
	storage_key   TEXT   NOT NULL,
	storage_value TEXT   NOT NULL
)`, table)
	if _, err := conn.Exec(ctx, createTableStmt); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}

	return &PostgresWriter{
		cfg:        cfg,
		watched:    NewWatchList(watched),
		insertStmt: fmt.Sprintf("INSERT INTO %s (contract, block_hash, block_number, storage_key, storage_value) VALUES($1, $2, $3, $4, $5)", table),
		conn:       conn,
	}, nil
}

// Enabled always reports true.
func (w *PostgresWriter) Enabled() bool {
	return true
}

// WriteStorageNode inserts a single row.
func (w *PostgresWriter) WriteStorageNode(contract common.Address, blockHash common.Hash, blockNumber uint64, key, value common.Hash) error {
	r := newRecord(contract, blockHash, blockNumber, key, value)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("postgres storage writer: connection closed")
	}
	_, err := w.conn.Exec(context.Background(), w.insertStmt, r.contract, r.blockHash, blockNumber, r.key, r.value)
	return err
}

// WriteStorageDiffs inserts a row for every changed slot of a watched account.
func (w *PostgresWriter) WriteStorageDiffs(blockHash common.Hash, blockNumber uint64, diffs StorageDiffs) error {
	return writeWatchedDiffs(w, w.watched, blockHash, blockNumber, diffs)
}

// Clone dials a new connection with the same settings.
func (w *PostgresWriter) Clone() (StorageWriter, error) {
	return NewPostgresWriter(context.Background(), w.cfg, w.watched.Accounts())
}

// Close terminates the connection.
func (w *PostgresWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	err := w.conn.Close(context.Background())
	w.conn = nil
	return err
}

var _ StorageWriter = (*PostgresWriter)(nil)
