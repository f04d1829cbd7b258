package indexer

import (
	"context"
	"fmt"
	"time"

	"storage-writer/internal/config"
	"storage-writer/internal/storagewriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// DiffSource yields per-block storage diffs. *rpc.Client satisfies it.
type DiffSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	StorageDiffs(ctx context.Context, number uint64) (common.Hash, storagewriter.StorageDiffs, error)
}

// Indexer walks a block range and hands every block's storage diffs to a
// StorageWriter. Blocks are processed one after another so rows land in
// block order.
type Indexer struct {
	cfg    *config.Config
	source DiffSource
	writer storagewriter.StorageWriter
}

// New constructs an Indexer.
//
// The caller is responsible for creating the diff source and the desired
// StorageWriter so different configurations (e.g. a fake source for tests)
// can be injected as needed.
func New(cfg *config.Config, source DiffSource, w storagewriter.StorageWriter) *Indexer {
	return &Indexer{cfg: cfg, source: source, writer: w}
}

// Run processes blocks from StartBlock to EndBlock (or the chain head at
// startup) and blocks until done, the context is cancelled or a write fails.
func (idx *Indexer) Run(ctx context.Context) error {
	if !idx.writer.Enabled() {
		logrus.Info("storage writing disabled, nothing to index")
		return nil
	}

	end := idx.cfg.EndBlock
	if end == 0 {
		latest, err := idx.source.LatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		end = latest
	}
	start := idx.cfg.StartBlock

	logrus.Infof("Starting indexer | from=%d to=%d", start, end)

	for n := start; n <= end; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		startTs := time.Now()
		slots, err := idx.processBlock(ctx, n)
		if err != nil {
			return err
		}
		logrus.Debugf("[OK] Block %d | Slots: %d | Time: %.2fs", n, slots, time.Since(startTs).Seconds())

		// Guard against wrap-around when end is the max uint64.
		if n == end {
			break
		}
	}

	logrus.Infof("Indexer finished | from=%d to=%d", start, end)
	return nil
}

// processBlock fetches and persists the diffs of one block. It returns the
// number of changed slots the block contained, watched or not.
func (idx *Indexer) processBlock(ctx context.Context, number uint64) (int, error) {
	hash, diffs, err := idx.source.StorageDiffs(ctx, number)
	if err != nil {
		return 0, fmt.Errorf("fetching storage diffs of block %d: %w", number, err)
	}

	if err := idx.writer.WriteStorageDiffs(hash, number, diffs); err != nil {
		return 0, fmt.Errorf("writing storage diffs of block %d: %w", number, err)
	}

	slots := 0
	for _, s := range diffs {
		slots += len(s)
	}
	return slots, nil
}
