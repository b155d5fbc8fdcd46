// Package scanner orchestrates the per-network indexing pipelines: adaptive
// Transfer-log discovery, classification, and deployment enrichment, run in
// parallel across networks on a fixed cycle cadence.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/config"
)

// Scanner runs every configured network pipeline.
type Scanner struct {
	pipelines []*Pipeline
	timeDelay time.Duration
	logger    *slog.Logger
}

// New builds one pipeline per configured network. An empty network list in
// the config means every registered network.
func New(cfg *config.Config, deps Deps) (*Scanner, error) {
	networks := cfg.Indexer.Networks
	if len(networks) == 0 {
		networks = chains.Names()
	}

	pipelines := make([]*Pipeline, 0, len(networks))
	for _, name := range networks {
		network, err := chains.Get(name)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, NewPipeline(network, cfg, deps))
	}
	return &Scanner{
		pipelines: pipelines,
		timeDelay: cfg.Indexer.TimeDelay,
		logger:    deps.Logger,
	}, nil
}

// Run executes scan cycles until ctx is cancelled, pausing timeDelay between
// cycles. A failing network logs and sits out the rest of its cycle; the
// other networks keep going.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		s.runCycle(ctx)

		select {
		case <-time.After(s.timeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cycle across all networks, used by one-shot
// invocations and tests.
func (s *Scanner) RunOnce(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Scanner) runCycle(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range s.pipelines {
		p := p
		g.Go(func() error {
			if err := p.RunCycle(ctx); err != nil {
				p.logger.Error("scan cycle failed", slog.String("error", err.Error()))
			}
			// Per-network failures never abort sibling pipelines.
			return nil
		})
	}
	_ = g.Wait()
}

// watchdog fires a callback when no progress is observed for the timeout,
// then re-arms. The scanner resets it on every delivered log window.
type watchdog struct {
	timeout time.Duration
	fire    func()
	resetC  chan struct{}
	done    chan struct{}
}

func newWatchdog(timeout time.Duration, fire func()) *watchdog {
	w := &watchdog{
		timeout: timeout,
		fire:    fire,
		resetC:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *watchdog) loop() {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			w.fire()
			timer.Reset(w.timeout)
		case <-w.resetC:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.timeout)
		case <-w.done:
			return
		}
	}
}

func (w *watchdog) reset() {
	select {
	case w.resetC <- struct{}{}:
	default:
	}
}

func (w *watchdog) stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}
