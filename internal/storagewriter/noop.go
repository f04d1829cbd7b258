package storagewriter

import "github.com/ethereum/go-ethereum/common"

// NoopWriter discards everything. It lets callers always hold a writer
// instead of special-casing disabled storage writing.
type NoopWriter struct{}

// NewNoopWriter returns a writer that persists nothing.
func NewNoopWriter() *NoopWriter {
	return &NoopWriter{}
}

// Enabled always reports false.
func (NoopWriter) Enabled() bool {
	return false
}

// WriteStorageNode discards the change.
func (NoopWriter) WriteStorageNode(common.Address, common.Hash, uint64, common.Hash, common.Hash) error {
	return nil
}

// WriteStorageDiffs discards the diffs.
func (NoopWriter) WriteStorageDiffs(common.Hash, uint64, StorageDiffs) error {
	return nil
}

// Clone returns another NoopWriter.
func (NoopWriter) Clone() (StorageWriter, error) {
	return NewNoopWriter(), nil
}

// Close is a no-op.
func (NoopWriter) Close() error {
	return nil
}

var _ StorageWriter = (*NoopWriter)(nil)
