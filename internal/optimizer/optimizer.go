// Package optimizer implements the per-(network, operation) chunk-size
// learner. Each batch-read outcome is folded into per-chunk-size buckets;
// the summary {initial, max, confidence} seeds the next process start.
package optimizer

import (
	"sync"
	"time"

	"github.com/chainscope/chainscope/internal/models"
)

// Operation names a batch-read call shape with its own learned sizing.
type Operation string

const (
	OpERC20         Operation = "erc20"
	OpNativeBalance Operation = "native-balance"
	OpContractCheck Operation = "contract-check"
	OpCodeHash      Operation = "codehash"
)

// Bounds are the static sizing limits and target duration for an operation.
type Bounds struct {
	Initial  int
	Min      int
	Max      int
	Target   time.Duration
	SlowAt   time.Duration
	VerySlow time.Duration
}

// confidenceSamples is the sample count at which confidence saturates at 1.
const confidenceSamples = 50

var defaults = map[Operation]Bounds{
	OpContractCheck: {Initial: 50, Min: 5, Max: 800, Target: 5 * time.Second},
	OpCodeHash:      {Initial: 40, Min: 5, Max: 500, Target: 5 * time.Second},
	OpNativeBalance: {Initial: 100, Min: 10, Max: 1000, Target: 5 * time.Second},
	OpERC20:         {Initial: 25, Min: 2, Max: 300, Target: 6 * time.Second},
}

// DefaultBounds returns the conservative cold-start bounds for op.
func DefaultBounds(op Operation) Bounds {
	b, ok := defaults[op]
	if !ok {
		b = Bounds{Initial: 25, Min: 2, Max: 300, Target: 5 * time.Second}
	}
	if b.SlowAt == 0 {
		b.SlowAt = b.Target + b.Target/2
	}
	if b.VerySlow == 0 {
		b.VerySlow = 3 * b.Target
	}
	return b
}

// Outcome reports one executed chunk back to the learner.
type Outcome struct {
	ChunkSize   int
	Duration    time.Duration
	Success     bool
	SocketError bool
}

// Recommendation summarizes the learned sizing for a fresh start.
type Recommendation struct {
	Initial    int
	Max        int
	Confidence float64
}

type bucket struct {
	successes    int
	failures     int
	socketErrors int
	meanDuration float64 // milliseconds
}

// Optimizer is the stateful learner for one (network, operation).
type Optimizer struct {
	mu      sync.Mutex
	network string
	op      Operation
	bounds  Bounds
	buckets map[int]*bucket
	samples int
}

// New creates a learner, optionally resuming from a persisted session.
func New(network string, op Operation, session *models.OptimizerSession) *Optimizer {
	o := &Optimizer{
		network: network,
		op:      op,
		bounds:  DefaultBounds(op),
		buckets: make(map[int]*bucket),
	}
	if session != nil {
		for _, b := range session.Buckets {
			o.buckets[b.ChunkSize] = &bucket{
				successes:    b.Successes,
				failures:     b.Failures,
				socketErrors: b.SocketErrors,
				meanDuration: b.MeanDuration,
			}
			o.samples += b.Successes + b.Failures
		}
	}
	return o
}

// Bounds returns the static limits for this operation.
func (o *Optimizer) Bounds() Bounds { return o.bounds }

// Record folds one chunk outcome into the histogram.
func (o *Optimizer) Record(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	b, ok := o.buckets[out.ChunkSize]
	if !ok {
		b = &bucket{}
		o.buckets[out.ChunkSize] = b
	}
	o.samples++
	if out.SocketError {
		b.socketErrors++
	}
	if !out.Success {
		b.failures++
		return
	}
	b.successes++
	ms := float64(out.Duration.Milliseconds())
	// Running mean over successful calls only.
	b.meanDuration += (ms - b.meanDuration) / float64(b.successes)
}

// Recommendation derives {initial, max, confidence} from the histogram.
// Confidence grows monotonically with the total sample count. With no
// samples, the conservative per-operation defaults apply.
func (o *Optimizer) Recommendation() Recommendation {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := Recommendation{
		Initial:    o.bounds.Initial,
		Max:        o.bounds.Max,
		Confidence: float64(o.samples) / confidenceSamples,
	}
	if rec.Confidence > 1 {
		rec.Confidence = 1
	}
	if o.samples == 0 {
		return rec
	}

	// Initial: largest chunk size whose success rate stays high and whose
	// mean duration sits at or under target. Max: largest size that ever
	// succeeded without socket errors dominating.
	targetMs := float64(o.bounds.Target.Milliseconds())
	bestInitial, bestMax := 0, 0
	for size, b := range o.buckets {
		total := b.successes + b.failures
		if b.successes == 0 || total == 0 {
			continue
		}
		successRate := float64(b.successes) / float64(total)
		if successRate >= 0.8 && size > bestMax {
			bestMax = size
		}
		if successRate >= 0.9 && b.meanDuration <= targetMs && size > bestInitial {
			bestInitial = size
		}
	}
	if bestInitial > 0 {
		rec.Initial = clamp(bestInitial, o.bounds.Min, o.bounds.Max)
	}
	if bestMax > 0 {
		rec.Max = clamp(bestMax, rec.Initial, o.bounds.Max)
	}
	return rec
}

// NextSize applies the duration-band multipliers to the current chunk size.
func (o *Optimizer) NextSize(current int, d time.Duration) int {
	b := o.bounds
	var factor float64
	switch {
	case d < 800*time.Millisecond:
		factor = 5
	case d < 2*time.Second:
		factor = 3
	case d < 4*time.Second:
		factor = 2
	case d < b.Target:
		factor = 1.5
	case d <= b.SlowAt:
		factor = 1
	case d <= b.VerySlow:
		factor = 0.7
	default:
		factor = 0.5
	}
	return clamp(int(float64(current)*factor), b.Min, b.Max)
}

// Snapshot renders the current histogram for persistence.
func (o *Optimizer) Snapshot() *models.OptimizerSession {
	o.mu.Lock()
	defer o.mu.Unlock()

	session := &models.OptimizerSession{
		Network:   o.network,
		Operation: string(o.op),
		UpdatedAt: time.Now().Unix(),
	}
	for size, b := range o.buckets {
		session.Buckets = append(session.Buckets, models.ChunkBucket{
			ChunkSize:    size,
			Successes:    b.successes,
			Failures:     b.failures,
			SocketErrors: b.socketErrors,
			MeanDuration: b.meanDuration,
		})
	}
	return session
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
