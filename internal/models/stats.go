package models

// DensityStats is the persisted log-density summary for one network, used to
// seed the adaptive fetcher's initial batch size on the next start.
type DensityStats struct {
	Network            string  `json:"network"`
	AvgLogsPerBlock    float64 `json:"avg_logs_per_block"`
	TotalBlocks        uint64  `json:"total_blocks"`
	TotalLogs          uint64  `json:"total_logs"`
	SampleCount        int     `json:"sample_count"`
	OptimalBatchSize   int     `json:"optimal_batch_size"`
	RecommendedProfile string  `json:"recommended_profile"`
	LastUpdated        int64   `json:"last_updated"`
}

// ChunkBucket holds the rolling metrics for one chunk size inside an
// optimizer session.
type ChunkBucket struct {
	ChunkSize    int     `json:"chunk_size"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	SocketErrors int     `json:"socket_errors"`
	MeanDuration float64 `json:"mean_duration_ms"`
}

// OptimizerSession is the persisted learner state for one (network, operation).
type OptimizerSession struct {
	Network   string        `json:"network"`
	Operation string        `json:"operation"`
	Buckets   []ChunkBucket `json:"buckets"`
	UpdatedAt int64         `json:"updated_at"`
}
