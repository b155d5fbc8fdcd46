package scanner

import "context"

// blockClock resolves block numbers to chain timestamps, memoizing within one
// scan cycle. Discovery records are stamped with chain time because the
// lookback window can reach hours into the past; wall clock is a last resort.
type blockClock struct {
	lookup func(context.Context, uint64) (int64, error)
	memo   map[uint64]int64
}

func newBlockClock(lookup func(context.Context, uint64) (int64, error)) *blockClock {
	return &blockClock{lookup: lookup, memo: make(map[uint64]int64)}
}

// at returns the timestamp of block number, or fallback when the lookup
// fails. Failures are not memoized so a later window retries the block.
func (c *blockClock) at(ctx context.Context, number uint64, fallback int64) int64 {
	if ts, ok := c.memo[number]; ok {
		return ts
	}
	ts, err := c.lookup(ctx, number)
	if err != nil || ts == 0 {
		return fallback
	}
	c.memo[number] = ts
	return ts
}
