package storagewriter

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyWriter fails the first failures calls and records the rest.
type flakyWriter struct {
	NoopWriter
	failures int
	calls    int
	written  []common.Hash
}

var errFlaky = errors.New("disk full")

func (f *flakyWriter) Enabled() bool { return true }

func (f *flakyWriter) WriteStorageNode(_ common.Address, _ common.Hash, _ uint64, key, _ common.Hash) error {
	f.calls++
	if f.calls <= f.failures {
		return errFlaky
	}
	f.written = append(f.written, key)
	return nil
}

func (f *flakyWriter) WriteStorageDiffs(blockHash common.Hash, blockNumber uint64, diffs StorageDiffs) error {
	return writeWatchedDiffs(f, NewWatchList([]common.Address{accountA}), blockHash, blockNumber, diffs)
}

func TestRetryWriterRecovers(t *testing.T) {
	inner := &flakyWriter{failures: 2}
	w := NewRetryWriter(inner, 3, 1)

	assert.True(t, w.Enabled())
	require.NoError(t, w.WriteStorageNode(accountA, blockHash, 1, key1, value1))
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []common.Hash{key1}, inner.written)
}

func TestRetryWriterGivesUp(t *testing.T) {
	inner := &flakyWriter{failures: 10}
	w := NewRetryWriter(inner, 3, 1)

	err := w.WriteStorageNode(accountA, blockHash, 1, key1, value1)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, inner.calls)
	assert.Empty(t, inner.written)
}

func TestRetryWriterDefaults(t *testing.T) {
	assert.Nil(t, NewRetryWriter(nil, 3, 1))

	w := NewRetryWriter(&flakyWriter{}, 0, 0).(*RetryWriter)
	assert.Equal(t, 1, w.attempts)
	assert.Equal(t, int64(1000), w.delay.Milliseconds())
}

func TestRetryWriterDiffsKeepInnerFiltering(t *testing.T) {
	inner := &flakyWriter{failures: 1}
	w := NewRetryWriter(inner, 2, 1)

	err := w.WriteStorageDiffs(blockHash, 5, StorageDiffs{
		accountA: {key1: value1, key2: value2},
		accountB: {key1: value1},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []common.Hash{key1, key2}, inner.written)
}

func TestRetryWriterCloneWrapsClone(t *testing.T) {
	csvWriter, err := NewCSVWriter(filepath.Join(t.TempDir(), CSVFileName), []common.Address{accountA}, false)
	require.NoError(t, err)
	w := NewRetryWriter(csvWriter, 2, 1)
	defer w.Close()

	c, err := w.Clone()
	require.NoError(t, err)
	defer c.Close()
	require.IsType(t, &RetryWriter{}, c)
	assert.IsType(t, &CSVWriter{}, c.(*RetryWriter).inner)
	assert.NotSame(t, csvWriter, c.(*RetryWriter).inner)
}
