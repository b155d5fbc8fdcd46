// Package rpc implements the JSON-RPC client layer: endpoint rotation with
// tiered failure state, message-level failure classification, bounded global
// retries, and a forced-rotation control used by the scanner watchdog.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
	"github.com/chainscope/chainscope/internal/scheduler"
)

const (
	defaultCallTimeout  = 25 * time.Second
	defaultWallCap      = 120 * time.Second
	globalRetries       = 3
	rateLimitBackoffCap = 30 * time.Second
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// rpcError is the error member of a JSON-RPC response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// httpError carries the HTTP status alongside the underlying failure so the
// classifier can see 401/403/429 directly.
type httpError struct {
	status int
	err    error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func statusOf(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.status
	}
	return 0
}

// Options tunes client timeouts.
type Options struct {
	CallTimeout time.Duration
	WallCap     time.Duration
}

// Client is a JSON-RPC client for one network. With multiple URLs it rotates
// per the endpoint health store; with a single URL it is the provider-primary
// backend used for getLogs, tier detection and optimizer-governed reads.
type Client struct {
	network string
	urls    []string
	states  *EndpointStates
	queue   *scheduler.Queue
	http    *http.Client
	wallCap time.Duration
	logger  *slog.Logger

	counter atomic.Uint64

	mu      sync.Mutex
	current string
}

// NewClient creates a rotating node-RPC client.
func NewClient(network string, urls []string, states *EndpointStates, queue *scheduler.Queue, logger *slog.Logger, opts Options) *Client {
	callTimeout := opts.CallTimeout
	if callTimeout == 0 {
		callTimeout = defaultCallTimeout
	}
	wallCap := opts.WallCap
	if wallCap == 0 {
		wallCap = defaultWallCap
	}
	return &Client{
		network: network,
		urls:    urls,
		states:  states,
		queue:   queue,
		http:    &http.Client{Timeout: callTimeout},
		wallCap: wallCap,
		logger:  logger.With(slog.String("network", network)),
	}
}

// NewProviderClient creates a single-endpoint client for calls that must be
// routed through one canonical provider (direct or local proxy).
func NewProviderClient(network, url string, states *EndpointStates, queue *scheduler.Queue, logger *slog.Logger, opts Options) *Client {
	return NewClient(network, []string{url}, states, queue, logger, opts)
}

// Network returns the client's network name.
func (c *Client) Network() string { return c.network }

// ForceNextRPC marks the currently selected endpoint slow and temporarily
// failed so the next attempt rotates past it. The scanner watchdog calls this
// when its wall clock fires before the HTTP-level timeout does.
func (c *Client) ForceNextRPC() {
	c.mu.Lock()
	url := c.current
	c.mu.Unlock()
	if url == "" {
		return
	}
	c.logger.Warn("forcing rpc rotation", slog.String("endpoint", url))
	c.states.MarkSlow(c.network, url)
	c.states.MarkTemporarilyFailed(c.network, url)
}

func (c *Client) setCurrent(url string) {
	c.mu.Lock()
	c.current = url
	c.mu.Unlock()
}

// Call performs a JSON-RPC call, rotating endpoints and retrying per policy.
// result must be a pointer suitable for json.Unmarshal, or nil to discard.
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.wallCap)
	defer cancel()

	var lastErr error
	rateLimited := false

	for attempt := 1; attempt <= globalRetries; attempt++ {
		for _, url := range c.states.Select(c.network, c.urls) {
			c.setCurrent(url)

			err := c.queue.Do(ctx, func(ctx context.Context) error {
				return c.post(ctx, url, result, method, params)
			})
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return apierrors.New(apierrors.KindTransient, "rpc."+method, ctx.Err())
			}
			// A null result is a valid answer, not an endpoint failure.
			if apierrors.IsNoData(err) {
				return err
			}
			lastErr = err

			switch classify(err, statusOf(err)) {
			case classTimeout:
				c.states.MarkSlow(c.network, url)
			case classPermanent:
				c.states.MarkPermanentlyFailed(c.network, url)
			case classTempSlow:
				c.states.MarkTemporarilyFailed(c.network, url)
				c.states.MarkSlow(c.network, url)
			case classRateLimit:
				rateLimited = true
				c.states.MarkTemporarilyFailed(c.network, url)
			default:
				c.states.MarkTemporarilyFailed(c.network, url)
			}

			c.logger.Debug("rpc call failed",
				slog.String("method", method),
				slog.String("endpoint", url),
				slog.String("error", err.Error()),
			)
		}

		if attempt < globalRetries {
			backoff := time.Duration(attempt) * 2 * time.Second
			if rateLimited {
				backoff = 5 * time.Second << (attempt - 1)
				if backoff > rateLimitBackoffCap {
					backoff = rateLimitBackoffCap
				}
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return apierrors.New(apierrors.KindTransient, "rpc."+method, ctx.Err())
			}
		}
	}

	kind := apierrors.KindTransient
	if rateLimited {
		kind = apierrors.KindRateLimited
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no usable endpoints for %s", c.network)
		kind = apierrors.KindFatal
	}
	return apierrors.New(kind, "rpc."+method, lastErr)
}

// post performs one HTTP round trip against a single endpoint.
func (c *Client) post(ctx context.Context, url string, result any, method string, params []any) error {
	if params == nil {
		params = []any{}
	}
	reqID := fmt.Sprintf("%s-%d", c.network, c.counter.Add(1))
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return &httpError{status: resp.StatusCode, err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &httpError{
			status: resp.StatusCode,
			err:    fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 256)),
		}
	}

	var envelope response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return apierrors.Newf(apierrors.KindNoData, "rpc."+method, "null result")
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
