// Package explorer implements the uniform explorer-API request layer. It
// supports both the unified v2 endpoint (chainid query parameter) and
// per-network endpoints, rotates API keys on retry, and distinguishes
// no-data responses from rate limits and hard errors.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chainscope/chainscope/internal/chains"
	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
	"github.com/chainscope/chainscope/internal/scheduler"
)

const maxRetries = 3

// retryBackoff computes the delay before the next attempt; replaced in tests.
var retryBackoff = func(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt)*base + time.Duration(rand.Int63n(int64(3*time.Second)))
}

// Params holds the module/action query parameters of one explorer request.
type Params map[string]string

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type proxyEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var noDataMarkers = []string{
	"no data found",
	"no transactions found",
	"no records found",
}

// Client performs explorer-API requests for one network.
type Client struct {
	network  chains.Network
	keys     []string
	proxyURL string
	useProxy bool
	queue    *scheduler.Queue
	http     *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	keyIdx int
}

// New creates an explorer client for the network.
func New(network chains.Network, apiKeys []string, proxyURL string, useProxy bool, queue *scheduler.Queue, logger *slog.Logger) *Client {
	return &Client{
		network:  network,
		keys:     apiKeys,
		proxyURL: proxyURL,
		useProxy: useProxy && proxyURL != "",
		queue:    queue,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With(slog.String("network", network.Name)),
	}
}

// nextKey advances the API-key ring and returns the new key.
func (c *Client) nextKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) == 0 {
		return ""
	}
	c.keyIdx = (c.keyIdx + 1) % len(c.keys)
	return c.keys[c.keyIdx]
}

func (c *Client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) == 0 {
		return ""
	}
	return c.keys[c.keyIdx]
}

// Request performs one explorer call and returns the raw result member.
// Address-valued parameters must be lowercased by the caller helpers; the
// generic path lowercases the well-known address keys defensively.
func (c *Client) Request(ctx context.Context, module, action string, params Params) (json.RawMessage, error) {
	op := "explorer." + module + "." + action

	query := url.Values{}
	query.Set("module", module)
	query.Set("action", action)
	for k, v := range params {
		if k == "address" || k == "contractaddresses" || k == "contractaddress" {
			v = strings.ToLower(v)
		}
		query.Set(k, v)
	}
	if c.network.ExplorerMode == chains.ExplorerUnified {
		query.Set("chainid", strconv.FormatUint(c.network.ChainID, 10))
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if key := c.currentKey(); key != "" {
			query.Set("apikey", key)
		}

		var raw []byte
		err := c.queue.Do(ctx, func(ctx context.Context) error {
			var innerErr error
			raw, innerErr = c.fetch(ctx, query)
			return innerErr
		})
		if err == nil {
			result, interpErr := c.interpret(module, raw, op)
			if interpErr == nil || apierrors.KindOf(interpErr) != apierrors.KindRateLimited {
				return result, interpErr
			}
			err = interpErr
		}
		if ctx.Err() != nil {
			return nil, apierrors.New(apierrors.KindTransient, op, ctx.Err())
		}
		lastErr = err

		c.nextKey()
		if attempt < maxRetries {
			base := 10 * time.Second
			if c.network.ExplorerMode == chains.ExplorerDedicated {
				base = 12 * time.Second
			}
			backoff := retryBackoff(attempt, base)
			c.logger.Debug("explorer retry",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, apierrors.New(apierrors.KindTransient, op, ctx.Err())
			}
		}
	}
	return nil, apierrors.New(apierrors.KindTransient, op, lastErr)
}

// fetch issues the HTTP request: POST through the local proxy when enabled,
// with direct-mode fallback on the same call when the proxy is unreachable.
func (c *Client) fetch(ctx context.Context, query url.Values) ([]byte, error) {
	if c.useProxy {
		raw, err := c.fetchProxy(ctx, query)
		if err == nil {
			return raw, nil
		}
		c.logger.Debug("explorer proxy unreachable, falling back to direct",
			slog.String("error", err.Error()))
	}
	return c.fetchDirect(ctx, query)
}

func (c *Client) fetchDirect(ctx context.Context, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.network.ExplorerURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *Client) fetchProxy(ctx context.Context, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL,
		strings.NewReader(query.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierrors.Newf(apierrors.KindRateLimited, "explorer", "http 429")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return raw, nil
}

// interpret applies the status-field semantics of the explorer response.
func (c *Client) interpret(module string, raw []byte, op string) (json.RawMessage, error) {
	// The proxy module responds JSON-RPC shaped, without a status field.
	if module == "proxy" {
		var pe proxyEnvelope
		if err := json.Unmarshal(raw, &pe); err != nil {
			return nil, apierrors.New(apierrors.KindTransient, op, err)
		}
		if pe.Error != nil {
			return nil, apierrors.Newf(apierrors.KindTransient, op, "proxy error %d: %s", pe.Error.Code, pe.Error.Message)
		}
		return pe.Result, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apierrors.New(apierrors.KindTransient, op, err)
	}

	if env.Status == "1" {
		return env.Result, nil
	}

	combined := strings.ToLower(env.Message + " " + string(env.Result))
	for _, marker := range noDataMarkers {
		if strings.Contains(combined, marker) {
			// This is data, not an error: the set is empty.
			return nil, apierrors.Newf(apierrors.KindNoData, op, "%s", env.Message)
		}
	}
	if strings.Contains(combined, "rate limit") || env.Message == "NOTOK" {
		return nil, apierrors.Newf(apierrors.KindRateLimited, op, "%s: %s", env.Message, truncate(env.Result, 128))
	}
	return nil, apierrors.Newf(apierrors.KindTransient, op, "%s: %s", env.Message, truncate(env.Result, 128))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
