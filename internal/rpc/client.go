package rpc

import (
	"context"
	"math/big"
	"time"

	"storage-writer/internal/config"
	"storage-writer/internal/storagewriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps the go-ethereum ethclient with retrying helpers.
type Client struct {
	*ethclient.Client

	retryCfg config.RetryConfig
}

// Dial establishes a new RPC connection with retry support using the provided context and URL.
// The retry configuration controls the number of attempts and the delay (in milliseconds) between them.
func Dial(ctx context.Context, url string, retryCfg config.RetryConfig) (*Client, error) {
	if retryCfg.Attempts == 0 {
		retryCfg.Attempts = 3
	}
	if retryCfg.DelayMS == 0 {
		retryCfg.DelayMS = 1500
	}

	c := &Client{retryCfg: retryCfg}
	cli, err := withRetry(ctx, c, "RPC dial", func() (*ethclient.Client, error) {
		return ethclient.DialContext(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	c.Client = cli
	return c, nil
}

// withRetry runs call until it succeeds, the attempts are exhausted or ctx is
// cancelled, waiting the configured delay between attempts.
func withRetry[T any](ctx context.Context, c *Client, op string, call func() (T, error)) (T, error) {
	var (
		res T
		err error
	)

	for attempt := 1; attempt <= c.retryCfg.Attempts; attempt++ {
		res, err = call()
		if err == nil {
			return res, nil
		}

		logrus.Warnf("%s failed (attempt %d/%d): %v", op, attempt, c.retryCfg.Attempts, err)

		// Don't wait after the final attempt
		if attempt < c.retryCfg.Attempts {
			select {
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			case <-time.After(time.Duration(c.retryCfg.DelayMS) * time.Millisecond):
			}
		}
	}

	return res, err
}

// GetHeaderByNumber retrieves a block header by its number with retry logic.
// Pass nil as the number parameter to fetch the latest header.
func (c *Client) GetHeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withRetry(ctx, c, "GetHeaderByNumber", func() (*types.Header, error) {
		return c.Client.HeaderByNumber(ctx, number)
	})
}

// LatestBlockNumber fetches the latest block number via eth_blockNumber with
// retry logic.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return withRetry(ctx, c, "LatestBlockNumber", func() (uint64, error) {
		return c.Client.BlockNumber(ctx)
	})
}

// StorageDiffs returns the hash of the given block together with every
// storage slot its transactions changed. The diff is computed by the node's
// prestateTracer in diff mode, so the endpoint must expose the debug
// namespace.
func (c *Client) StorageDiffs(ctx context.Context, number uint64) (common.Hash, storagewriter.StorageDiffs, error) {
	header, err := c.GetHeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, nil, err
	}
	hash := header.Hash()

	traces, err := withRetry(ctx, c, "debug_traceBlockByHash", func() ([]txTrace, error) {
		var res []txTrace
		err := c.Client.Client().CallContext(ctx, &res, "debug_traceBlockByHash", hash, prestateDiffTracer)
		return res, err
	})
	if err != nil {
		return common.Hash{}, nil, err
	}

	return hash, mergeTraces(traces), nil
}

var prestateDiffTracer = map[string]interface{}{
	"tracer":       "prestateTracer",
	"tracerConfig": map[string]interface{}{"diffMode": true},
}

type txTrace struct {
	TxHash common.Hash  `json:"txHash"`
	Result prestateDiff `json:"result"`
}

type prestateDiff struct {
	Pre  map[common.Address]accountState `json:"pre"`
	Post map[common.Address]accountState `json:"post"`
}

type accountState struct {
	Storage map[common.Hash]common.Hash `json:"storage"`
}

// mergeTraces folds per-transaction diffs into the block's final storage
// values. Transactions are applied in order so the last write to a slot wins.
// In diff mode the tracer leaves cleared slots out of "post"; those are
// recorded as zero.
func mergeTraces(traces []txTrace) storagewriter.StorageDiffs {
	diffs := make(storagewriter.StorageDiffs)
	set := func(addr common.Address, k, v common.Hash) {
		slots, ok := diffs[addr]
		if !ok {
			slots = make(map[common.Hash]common.Hash)
			diffs[addr] = slots
		}
		slots[k] = v
	}

	for _, tr := range traces {
		for addr, pre := range tr.Result.Pre {
			post := tr.Result.Post[addr].Storage
			for k := range pre.Storage {
				if _, ok := post[k]; !ok {
					set(addr, k, common.Hash{})
				}
			}
		}
		for addr, post := range tr.Result.Post {
			for k, v := range post.Storage {
				set(addr, k, v)
			}
		}
	}
	return diffs
}
