package storagewriter

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// RetryWriter decorates another StorageWriter, retrying each record up to the
// configured number of attempts and waiting delay between them. The writers
// in this package never retry on their own; wrapping one in a RetryWriter is
// how a caller opts in.
//
// If attempts is < 1, it defaults to 1 (no retries).
// If delayMs is 0, it defaults to 1000ms.
//
// The error of the last attempt is returned when every attempt fails.
type RetryWriter struct {
	inner    StorageWriter
	attempts int
	delay    time.Duration
}

// NewRetryWriter wraps inner with retry behaviour.
func NewRetryWriter(inner StorageWriter, attempts int, delayMs int) StorageWriter {
	if inner == nil {
		return nil
	}
	if attempts < 1 {
		attempts = 1
	}
	if delayMs == 0 {
		delayMs = 1000
	}
	return &RetryWriter{
		inner:    inner,
		attempts: attempts,
		delay:    time.Duration(delayMs) * time.Millisecond,
	}
}

// Enabled reports whether the wrapped writer is enabled.
func (r *RetryWriter) Enabled() bool {
	return r.inner.Enabled()
}

// WriteStorageNode forwards the call to the wrapped writer retrying on failure.
func (r *RetryWriter) WriteStorageNode(contract common.Address, blockHash common.Hash, blockNumber uint64, key, value common.Hash) error {
	return r.do(contract, blockNumber, key, func() error {
		return r.inner.WriteStorageNode(contract, blockHash, blockNumber, key, value)
	})
}

// WriteStorageDiffs hands the inner writer one single-slot batch per record,
// so filtering stays with the inner writer's watch-list and every record is
// retried on its own.
func (r *RetryWriter) WriteStorageDiffs(blockHash common.Hash, blockNumber uint64, diffs StorageDiffs) error {
	for addr, slots := range diffs {
		for k, v := range slots {
			single := StorageDiffs{addr: {k: v}}
			err := r.do(addr, blockNumber, k, func() error {
				return r.inner.WriteStorageDiffs(blockHash, blockNumber, single)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RetryWriter) do(contract common.Address, blockNumber uint64, key common.Hash, write func() error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = write()
		if err == nil {
			return nil
		}

		logrus.Warnf("storage write failed | block=%d contract=%s key=%s (attempt %d/%d): %v",
			blockNumber, contract.Hex(), key.Hex(), attempt, r.attempts, err)

		// Wait before next retry unless it's the final attempt.
		if attempt < r.attempts {
			time.Sleep(r.delay)
		}
	}
	return err
}

// Clone clones the inner writer and wraps the copy with the same policy.
func (r *RetryWriter) Clone() (StorageWriter, error) {
	inner, err := r.inner.Clone()
	if err != nil {
		return nil, err
	}
	return &RetryWriter{inner: inner, attempts: r.attempts, delay: r.delay}, nil
}

// Close closes the wrapped writer.
func (r *RetryWriter) Close() error {
	return r.inner.Close()
}

var _ StorageWriter = (*RetryWriter)(nil)
