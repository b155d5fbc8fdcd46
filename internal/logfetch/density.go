package logfetch

import (
	"context"
	"sync"
	"time"

	"github.com/chainscope/chainscope/internal/models"
)

// densityAlpha is the EWMA smoothing factor for logs-per-block updates.
const densityAlpha = 0.2

// densityConfidenceSamples is the sample count above which the persisted
// optimal batch size overrides the profile's initial on cold start.
const densityConfidenceSamples = 10

// DensityStore persists one density row per network.
type DensityStore interface {
	Get(ctx context.Context, network string) (*models.DensityStats, error)
	Save(ctx context.Context, stats *models.DensityStats) error
}

// densityTracker accumulates per-request (blocks, logs) samples.
type densityTracker struct {
	mu sync.Mutex

	network         string
	avgLogsPerBlock float64
	totalBlocks     uint64
	totalLogs       uint64
	sampleCount     int
	optimalBatch    uint64
	profileName     string
}

func newDensityTracker(network, profileName string, prior *models.DensityStats) *densityTracker {
	t := &densityTracker{network: network, profileName: profileName}
	if prior != nil {
		t.avgLogsPerBlock = prior.AvgLogsPerBlock
		t.totalBlocks = prior.TotalBlocks
		t.totalLogs = prior.TotalLogs
		t.sampleCount = prior.SampleCount
		t.optimalBatch = uint64(prior.OptimalBatchSize)
	}
	return t
}

// record folds one request's observation into the rolling stats. batch is
// remembered as optimal when the request landed inside the target band.
func (t *densityTracker) record(blocks uint64, logs int, inTargetBand bool) {
	if blocks == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalBlocks += blocks
	t.totalLogs += uint64(logs)
	t.sampleCount++
	perBlock := float64(logs) / float64(blocks)
	if t.sampleCount == 1 {
		t.avgLogsPerBlock = perBlock
	} else {
		t.avgLogsPerBlock += (perBlock - t.avgLogsPerBlock) * densityAlpha
	}
	if inTargetBand && blocks > t.optimalBatch {
		t.optimalBatch = blocks
	}
}

func (t *densityTracker) snapshot() *models.DensityStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &models.DensityStats{
		Network:            t.network,
		AvgLogsPerBlock:    t.avgLogsPerBlock,
		TotalBlocks:        t.totalBlocks,
		TotalLogs:          t.totalLogs,
		SampleCount:        t.sampleCount,
		OptimalBatchSize:   int(t.optimalBatch),
		RecommendedProfile: t.profileName,
		LastUpdated:        time.Now().Unix(),
	}
}

func (t *densityTracker) confident() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleCount >= densityConfidenceSamples && t.optimalBatch > 0
}

func (t *densityTracker) learnedBatch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.optimalBatch
}
