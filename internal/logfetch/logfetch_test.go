package logfetch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/models"
)

func TestParseSuggestedRange(t *testing.T) {
	err := errors.New("query returned more than 10000 results. Try with this block range [0x3b9aca00, 0x3b9aca63]")
	size, ok := parseSuggestedRange(err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), size)

	_, ok = parseSuggestedRange(errors.New("query returned more than 10000 results"))
	assert.False(t, ok)

	_, ok = parseSuggestedRange(errors.New("range [0xff, 0x01]"))
	assert.False(t, ok, "inverted range must be rejected")
}

func TestIsRangedError(t *testing.T) {
	assert.True(t, isRangedError(errors.New("query returned more than 10000 results")))
	assert.True(t, isRangedError(errors.New("eth_getLogs block range too large")))
	assert.True(t, isRangedError(errors.New("Response size exceeded")))
	assert.False(t, isRangedError(errors.New("execution reverted")))
}

func paygFetcher() *Fetcher {
	network := chains.Network{
		Name:     "testnet",
		Activity: chains.ActivityHigh,
		TierBlockCaps: map[chains.Tier]uint64{
			chains.TierFree:   10,
			chains.TierPayg:   2000,
			chains.TierGrowth: 10000,
		},
	}
	profile := ProfileFor(chains.ActivityHigh, chains.TierPayg)
	return &Fetcher{
		network:   network,
		tier:      chains.TierPayg,
		profile:   profile,
		batchSize: profile.InitialBatchSize,
	}
}

func TestAdjustBands(t *testing.T) {
	cases := []struct {
		name    string
		blocks  uint64
		logs    int
		elapsed time.Duration
		want    uint64
	}{
		{"fast and sparse grows", 100, 100, 500 * time.Millisecond, 200},
		{"in band holds", 100, 3000, 5 * time.Second, 100},
		{"slow response shrinks", 100, 3000, 12 * time.Second, 50},
		{"over log target shrinks", 100, 6000, 2 * time.Second, 50},
		{"provider cap shrinks even when fast", 100, 10000, time.Second, 50},
		{"growth clamps at profile max", 800, 100, 500 * time.Millisecond, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := paygFetcher()
			f.adjust(tc.blocks, tc.logs, tc.elapsed)
			assert.Equal(t, tc.want, f.batchSize)
		})
	}
}

func TestClampRangeHonorsTierCap(t *testing.T) {
	f := paygFetcher()
	f.tier = chains.TierFree

	// The free-tier cap of 10 blocks beats the profile max of 1000.
	assert.Equal(t, uint64(10), f.clampRange(5000))
	assert.Equal(t, f.profile.MinBatchSize, f.clampRange(1))
}

func TestShrinkNeverGoesBelowMin(t *testing.T) {
	f := paygFetcher()
	f.shrink(f.profile.MinBatchSize)
	assert.Equal(t, f.profile.MinBatchSize, f.batchSize)
}

func TestProfileForFallsBack(t *testing.T) {
	p := ProfileFor(chains.Activity("unknown"), chains.Tier("enterprise"))
	assert.Equal(t, "medium/free", p.Name)
}

func TestProfileMatrixCoversEveryActivityAndTier(t *testing.T) {
	activities := []chains.Activity{
		chains.ActivityUltraHigh,
		chains.ActivityHigh,
		chains.ActivityMedium,
		chains.ActivityLow,
		chains.ActivityLegacy,
	}
	tiers := []chains.Tier{
		chains.TierFree,
		chains.TierPayg,
		chains.TierGrowth,
		chains.TierPremium,
	}

	for _, a := range activities {
		for _, tier := range tiers {
			p := ProfileFor(a, tier)
			assert.Equal(t, string(a)+"/"+string(tier), p.Name,
				"every activity and tier pair needs its own row")
			assert.NotZero(t, p.InitialBatchSize)
			assert.LessOrEqual(t, p.MinBatchSize, p.InitialBatchSize)
			assert.LessOrEqual(t, p.InitialBatchSize, p.MaxBatchSize)
		}
	}
	assert.GreaterOrEqual(t, len(profiles), len(activities)*len(tiers))
}

func TestDensityTrackerEWMA(t *testing.T) {
	tr := newDensityTracker("testnet", "high/payg", nil)

	tr.record(100, 1000, true)
	assert.InDelta(t, 10.0, tr.snapshot().AvgLogsPerBlock, 0.001, "first sample seeds the average")

	tr.record(100, 2000, true)
	// 10 + (20-10)*0.2
	assert.InDelta(t, 12.0, tr.snapshot().AvgLogsPerBlock, 0.001)

	tr.record(0, 500, true)
	assert.Equal(t, 2, tr.snapshot().SampleCount, "zero-block samples are dropped")
}

func TestDensityTrackerConfidence(t *testing.T) {
	tr := newDensityTracker("testnet", "high/payg", nil)
	assert.False(t, tr.confident())

	for i := 0; i < densityConfidenceSamples; i++ {
		tr.record(100, 1000, false)
	}
	assert.False(t, tr.confident(), "out-of-band samples never set an optimal batch")

	tr.record(250, 1000, true)
	assert.True(t, tr.confident())
	assert.Equal(t, uint64(250), tr.learnedBatch())

	// A smaller in-band batch never lowers the learned optimum.
	tr.record(50, 1000, true)
	assert.Equal(t, uint64(250), tr.learnedBatch())
}

func TestDensityTrackerResumesFromPrior(t *testing.T) {
	prior := &models.DensityStats{
		Network:          "testnet",
		AvgLogsPerBlock:  7.5,
		TotalBlocks:      10000,
		TotalLogs:        75000,
		SampleCount:      40,
		OptimalBatchSize: 400,
	}
	tr := newDensityTracker("testnet", "high/payg", prior)

	assert.True(t, tr.confident())
	assert.Equal(t, uint64(400), tr.learnedBatch())

	snap := tr.snapshot()
	assert.Equal(t, uint64(10000), snap.TotalBlocks)
	assert.Equal(t, "high/payg", snap.RecommendedProfile)
}
