package storagewriter

import (
	"bytes"
	"encoding/csv"
	"io"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// CSVFileName is the file, relative to the data directory, the CSV writer
// appends to.
const CSVFileName = "watched_storage"

// CSVWriter appends one row per watched storage change to a single CSV file:
//
//	contract,block_hash,block_number,key,value
//
// The file is opened in append mode and never rewritten, so a slot changing
// in several blocks yields one row per block. Every row is flushed before
// WriteStorageNode returns. A failed write is rolled back, so neither a
// partial row nor a stale error outlives the call.
type CSVWriter struct {
	path    string
	fsync   bool
	watched WatchList

	mu   sync.Mutex
	file rowFile
}

// rowFile is the part of *os.File the CSV writer needs.
type rowFile interface {
	io.WriteCloser
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// NewCSVWriter opens (creating if needed) the file at path for appending.
// When fsync is set the file is additionally fsynced after each row.
func NewCSVWriter(path string, watched []common.Address, fsync bool) (*CSVWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("csv storage writer: empty file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv output directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file %s: %w", path, err)
	}

	return &CSVWriter{
		path:    path,
		fsync:   fsync,
		watched: NewWatchList(watched),
		file:    f,
	}, nil
}

// Path returns the file rows are appended to.
func (w *CSVWriter) Path() string {
	return w.path
}

// Enabled always reports true.
func (w *CSVWriter) Enabled() bool {
	return true
}

// WriteStorageNode appends a single row and flushes it.
func (w *CSVWriter) WriteStorageNode(contract common.Address, blockHash common.Hash, blockNumber uint64, key, value common.Hash) error {
	row := newRecord(contract, blockHash, blockNumber, key, value).fields()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("csv storage writer %s: %w", w.path, os.ErrClosed)
	}
	// Each row is encoded on its own so an earlier failure leaves no
	// buffered state behind.
	var buf bytes.Buffer
	enc := csv.NewWriter(&buf)
	if err := enc.Write(row); err != nil {
		return err
	}
	enc.Flush()
	if err := enc.Error(); err != nil {
		return err
	}

	n, err := w.file.Write(buf.Bytes())
	if err != nil {
		if n > 0 {
			if rbErr := w.truncateTail(int64(n)); rbErr != nil {
				return fmt.Errorf("%w (partial row of %d bytes left in %s: %v)", err, n, w.path, rbErr)
			}
		}
		return err
	}
	if w.fsync {
		return w.file.Sync()
	}
	return nil
}

// truncateTail drops the last n bytes of the file.
func (w *CSVWriter) truncateTail(n int64) error {
	fi, err := w.file.Stat()
	if err != nil {
		return err
	}
	return w.file.Truncate(fi.Size() - n)
}

// WriteStorageDiffs appends a row for every changed slot of a watched account.
func (w *CSVWriter) WriteStorageDiffs(blockHash common.Hash, blockNumber uint64, diffs StorageDiffs) error {
	return writeWatchedDiffs(w, w.watched, blockHash, blockNumber, diffs)
}

// Clone reopens the same file with its own handle.
func (w *CSVWriter) Clone() (StorageWriter, error) {
	return NewCSVWriter(w.path, w.watched.Accounts(), w.fsync)
}

// Close closes the file. Further writes fail.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

var _ StorageWriter = (*CSVWriter)(nil)
