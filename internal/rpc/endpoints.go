package rpc

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

const failureTTL = 5 * time.Minute

// endpointStatus tracks one (network, endpoint) pair. Slow and temporary
// failures expire after failureTTL; permanent failures last the process
// lifetime. Eviction is lazy, on read.
type endpointStatus struct {
	slowUntil time.Time
	tempUntil time.Time
	permanent bool
}

// EndpointStates is the process-wide endpoint health store shared by every
// network client.
type EndpointStates struct {
	mu     sync.Mutex
	states map[string]*endpointStatus
	logger *slog.Logger
}

// NewEndpointStates creates an empty health store.
func NewEndpointStates(logger *slog.Logger) *EndpointStates {
	return &EndpointStates{
		states: make(map[string]*endpointStatus),
		logger: logger,
	}
}

func key(network, url string) string { return network + "|" + url }

func (s *EndpointStates) get(network, url string) *endpointStatus {
	st, ok := s.states[key(network, url)]
	if !ok {
		st = &endpointStatus{}
		s.states[key(network, url)] = st
	}
	return st
}

// MarkSlow flags the endpoint as slow for failureTTL.
func (s *EndpointStates) MarkSlow(network, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(network, url).slowUntil = time.Now().Add(failureTTL)
}

// MarkTemporarilyFailed excludes the endpoint from selection for failureTTL.
func (s *EndpointStates) MarkTemporarilyFailed(network, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(network, url).tempUntil = time.Now().Add(failureTTL)
}

// MarkPermanentlyFailed excludes the endpoint for the process lifetime.
func (s *EndpointStates) MarkPermanentlyFailed(network, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(network, url).permanent = true
	s.logger.Warn("rpc endpoint permanently failed",
		slog.String("network", network),
		slog.String("endpoint", url),
	)
}

// Select orders the candidate endpoints for the next attempt: permanently and
// temporarily failed endpoints are excluded, the remainder is partitioned into
// fast and slow, each group shuffled, fast first. When everything is excluded
// the temporary state is reset and selection retried; if the list is still
// empty the permanent state is reset as a last resort.
func (s *EndpointStates) Select(network string, urls []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.selectLocked(network, urls)
	if len(ordered) > 0 {
		return ordered
	}

	s.logger.Warn("all rpc endpoints excluded, resetting temporary state",
		slog.String("network", network))
	for _, u := range urls {
		st := s.get(network, u)
		st.tempUntil = time.Time{}
		st.slowUntil = time.Time{}
	}
	ordered = s.selectLocked(network, urls)
	if len(ordered) > 0 {
		return ordered
	}

	s.logger.Warn("all rpc endpoints permanently failed, resetting as last resort",
		slog.String("network", network))
	for _, u := range urls {
		s.get(network, u).permanent = false
	}
	return s.selectLocked(network, urls)
}

func (s *EndpointStates) selectLocked(network string, urls []string) []string {
	now := time.Now()
	var fast, slow []string
	for _, u := range urls {
		st := s.get(network, u)
		if st.permanent {
			continue
		}
		if st.tempUntil.After(now) {
			continue
		}
		if st.slowUntil.After(now) {
			slow = append(slow, u)
		} else {
			fast = append(fast, u)
		}
	}
	rand.Shuffle(len(fast), func(i, j int) { fast[i], fast[j] = fast[j], fast[i] })
	rand.Shuffle(len(slow), func(i, j int) { slow[i], slow[j] = slow[j], slow[i] })
	return append(fast, slow...)
}

// IsPermanentlyFailed reports whether the endpoint is excluded for the
// process lifetime.
func (s *EndpointStates) IsPermanentlyFailed(network, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(network, url).permanent
}
