// Package scheduler provides the rate-limited request queues that gate all
// outbound traffic. Explorer-API and node-RPC calls run through independent
// FIFO queues, each with its own in-flight cap and a jittered delay inserted
// after every dispatch.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Task is a unit of outbound work executed under a queue's admission control.
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	fn   Task
	done chan error
}

// Queue is a strict-FIFO admission controller. There is no backpressure on
// enqueue; producers are already bounded by optimizer chunk sizes and the
// block-range fetcher.
type Queue struct {
	name     string
	minDelay time.Duration
	maxDelay time.Duration

	jobs chan *job
	sem  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewQueue creates a queue and starts its background dispatcher.
func NewQueue(name string, maxConcurrent int, minDelay, maxDelay time.Duration) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	q := &Queue{
		name:     name,
		minDelay: minDelay,
		maxDelay: maxDelay,
		jobs:     make(chan *job, 4096),
		sem:      make(chan struct{}, maxConcurrent),
		closed:   make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Do enqueues fn and blocks until it completes or ctx is cancelled. On
// cancellation the promise is dropped; an already-dispatched call is not
// aborted, its result is discarded.
func (q *Queue) Do(ctx context.Context, fn Task) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return context.Canceled
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the dispatcher. Queued jobs that have not been admitted fail
// with context.Canceled through their Do call.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

func (q *Queue) dispatch() {
	for {
		var j *job
		select {
		case j = <-q.jobs:
		case <-q.closed:
			return
		}

		// Caller gave up while queued; skip without burning a delay slot.
		if j.ctx.Err() != nil {
			j.done <- j.ctx.Err()
			continue
		}

		select {
		case q.sem <- struct{}{}:
		case <-q.closed:
			j.done <- context.Canceled
			return
		}

		go func(j *job) {
			defer func() { <-q.sem }()
			j.done <- j.fn(j.ctx)
		}(j)

		q.sleepJitter()
	}
}

func (q *Queue) sleepJitter() {
	if q.maxDelay <= 0 {
		return
	}
	d := q.minDelay
	if q.maxDelay > q.minDelay {
		d += time.Duration(rand.Int63n(int64(q.maxDelay - q.minDelay)))
	}
	select {
	case <-time.After(d):
	case <-q.closed:
	}
}

// Scheduler bundles the two shared queues.
type Scheduler struct {
	Explorer *Queue
	RPC      *Queue
}

// Options tunes queue caps and delays.
type Options struct {
	ExplorerConcurrency int
	RPCConcurrency      int
	ExplorerMinDelay    time.Duration
	ExplorerMaxDelay    time.Duration
	RPCMinDelay         time.Duration
	RPCMaxDelay         time.Duration
}

// DefaultOptions returns the production caps: 3 in-flight explorer calls,
// 8 in-flight RPC calls.
func DefaultOptions() Options {
	return Options{
		ExplorerConcurrency: 3,
		RPCConcurrency:      8,
		ExplorerMinDelay:    150 * time.Millisecond,
		ExplorerMaxDelay:    400 * time.Millisecond,
		RPCMinDelay:         20 * time.Millisecond,
		RPCMaxDelay:         80 * time.Millisecond,
	}
}

// New creates the explorer and RPC queues.
func New(opts Options, logger *slog.Logger) *Scheduler {
	logger.Debug("starting request scheduler",
		slog.Int("explorer_concurrency", opts.ExplorerConcurrency),
		slog.Int("rpc_concurrency", opts.RPCConcurrency),
	)
	return &Scheduler{
		Explorer: NewQueue("explorer", opts.ExplorerConcurrency, opts.ExplorerMinDelay, opts.ExplorerMaxDelay),
		RPC:      NewQueue("rpc", opts.RPCConcurrency, opts.RPCMinDelay, opts.RPCMaxDelay),
	}
}

// Close stops both queues.
func (s *Scheduler) Close() {
	s.Explorer.Close()
	s.RPC.Close()
}
