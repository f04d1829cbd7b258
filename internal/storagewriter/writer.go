package storagewriter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// StorageDiffs maps an account to the storage slots that changed in one
// block, keyed by slot with the new value.
type StorageDiffs map[common.Address]map[common.Hash]common.Hash

// StorageWriter persists storage diffs of watched contracts.
//
// Implementations must be safe for concurrent use. Every successful write is
// flushed to the underlying medium before the call returns. Errors are always
// handed back to the caller; nothing is retried or logged-and-dropped here.
type StorageWriter interface {
	// Enabled reports whether the writer persists anything. Callers can skip
	// computing diffs altogether when it returns false.
	Enabled() bool

	// WriteStorageNode persists a single storage change.
	WriteStorageNode(contract common.Address, blockHash common.Hash, blockNumber uint64, key, value common.Hash) error

	// WriteStorageDiffs persists one record per changed slot of every watched
	// account in diffs. It stops at the first failing record; records written
	// before it remain persisted.
	WriteStorageDiffs(blockHash common.Hash, blockNumber uint64, diffs StorageDiffs) error

	// Clone returns a writer with the same configuration backed by its own,
	// freshly acquired file handle or connection.
	Clone() (StorageWriter, error)

	// Close releases the underlying resource.
	Close() error
}

// Config describes which writer New builds and how.
type Config struct {
	Database        Database
	WatchedAccounts []common.Address

	// CSVPath is the file rows are appended to when Database is Csv.
	CSVPath string
	// CSVSync additionally fsyncs the file after every row.
	CSVSync bool

	Postgres PostgresConfig
}

// New builds the writer selected by cfg.Database.
func New(ctx context.Context, cfg Config) (StorageWriter, error) {
	switch cfg.Database {
	case Csv:
		return NewCSVWriter(cfg.CSVPath, cfg.WatchedAccounts, cfg.CSVSync)
	case None:
		return NewNoopWriter(), nil
	case Postgres:
		return NewPostgresWriter(ctx, cfg.Postgres, cfg.WatchedAccounts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDatabase, cfg.Database)
	}
}

// WatchList is the immutable, ordered set of accounts a writer persists
// diffs for.
type WatchList struct {
	accounts []common.Address
	index    map[common.Address]struct{}
}

// NewWatchList copies accounts into a new WatchList.
func NewWatchList(accounts []common.Address) WatchList {
	wl := WatchList{
		accounts: make([]common.Address, len(accounts)),
		index:    make(map[common.Address]struct{}, len(accounts)),
	}
	copy(wl.accounts, accounts)
	for _, a := range accounts {
		wl.index[a] = struct{}{}
	}
	return wl
}

// Contains reports whether addr is watched.
func (wl WatchList) Contains(addr common.Address) bool {
	_, ok := wl.index[addr]
	return ok
}

// Accounts returns a copy of the watched accounts in their original order.
func (wl WatchList) Accounts() []common.Address {
	out := make([]common.Address, len(wl.accounts))
	copy(out, wl.accounts)
	return out
}

// Len returns the number of watched accounts.
func (wl WatchList) Len() int {
	return len(wl.accounts)
}

type nodeWriter interface {
	WriteStorageNode(contract common.Address, blockHash common.Hash, blockNumber uint64, key, value common.Hash) error
}

// writeWatchedDiffs is the filtering loop shared by the persisting writers.
// Map iteration order is whatever Go yields; row order within a block is
// therefore unspecified.
func writeWatchedDiffs(w nodeWriter, watched WatchList, blockHash common.Hash, blockNumber uint64, diffs StorageDiffs) error {
	for addr, slots := range diffs {
		if !watched.Contains(addr) {
			continue
		}
		for k, v := range slots {
			if err := w.WriteStorageNode(addr, blockHash, blockNumber, k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// record is the textual form of a storage change shared by every medium:
// lowercase hex without a 0x prefix, block number in decimal.
type record struct {
	contract    string
	blockHash   string
	blockNumber string
	key         string
	value       string
}

func newRecord(contract common.Address, blockHash common.Hash, blockNumber uint64, key, value common.Hash) record {
	return record{
		contract:    common.Bytes2Hex(contract.Bytes()),
		blockHash:   common.Bytes2Hex(blockHash.Bytes()),
		blockNumber: strconv.FormatUint(blockNumber, 10),
		key:         common.Bytes2Hex(key.Bytes()),
		value:       common.Bytes2Hex(value.Bytes()),
	}
}

func (r record) fields() []string {
	return []string{r.contract, r.blockHash, r.blockNumber, r.key, r.value}
}
