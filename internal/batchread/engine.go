// Package batchread executes on-chain aggregator reads in optimizer-governed
// chunks. The loop preserves input order and length: every address yields a
// result slot, with a sentinel recorded when even a single-address call fails.
package batchread

import (
	"context"
	"log/slog"
	"math/big"
	"math/rand"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/middleware"
	"github.com/chainscope/chainscope/internal/optimizer"
	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
	"github.com/chainscope/chainscope/internal/rpc"
)

const (
	socketShrinkFactor = 0.3
	shrinkFactor       = 0.5
	shapeRetries       = 3
	shapeBackoff       = 500 * time.Millisecond
	// chunkFailureLimit is how many shrink-retries a single chunk gets before
	// the engine degrades to single-address calls.
	chunkFailureLimit = 2
)

// Engine performs chunked aggregator reads for one network.
type Engine struct {
	network    chains.Network
	client     *rpc.Client
	optimizers map[optimizer.Operation]*optimizer.Optimizer
	logger     *slog.Logger
}

// New creates an engine backed by the provider-primary RPC client.
func New(network chains.Network, client *rpc.Client, optimizers map[optimizer.Operation]*optimizer.Optimizer, logger *slog.Logger) *Engine {
	return &Engine{
		network:    network,
		client:     client,
		optimizers: optimizers,
		logger:     logger.With(slog.String("network", network.Name)),
	}
}

// Optimizer returns the learner for op, creating a cold one if absent.
func (e *Engine) Optimizer(op optimizer.Operation) *optimizer.Optimizer {
	o, ok := e.optimizers[op]
	if !ok {
		o = optimizer.New(e.network.Name, op, nil)
		e.optimizers[op] = o
	}
	return o
}

func isSocketError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "socket hang up") ||
		strings.Contains(msg, "econnreset") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout")
}

// chunkOperation runs call over addrs in adaptive chunks. The returned slices
// always have len(addrs) entries in input order; sentinel fills slots whose
// single-address retry also failed, and the missing mask marks those slots so
// callers never mistake a sentinel for an observation.
func chunkOperation[T any](
	ctx context.Context,
	e *Engine,
	op optimizer.Operation,
	addrs []common.Address,
	call func(ctx context.Context, chunk []common.Address) ([]T, error),
	single func(ctx context.Context, addr common.Address) (T, error),
	sentinel T,
) ([]T, []bool, error) {
	opt := e.Optimizer(op)
	rec := opt.Recommendation()
	bounds := opt.Bounds()

	size := rec.Initial
	results := make([]T, 0, len(addrs))
	missing := make([]bool, 0, len(addrs))
	idx := 0
	chunkFailures := 0

	for idx < len(addrs) {
		if ctx.Err() != nil {
			return nil, nil, apierrors.New(apierrors.KindTransient, "batchread."+string(op), ctx.Err())
		}

		end := idx + size
		if end > len(addrs) {
			end = len(addrs)
		}
		chunk := addrs[idx:end]

		start := time.Now()
		out, err := call(ctx, chunk)
		elapsed := time.Since(start)

		if err == nil && len(out) != len(chunk) {
			err = apierrors.Newf(apierrors.KindShapeMismatch, "batchread."+string(op),
				"got %d results for %d addresses", len(out), len(chunk))
		}

		if err == nil {
			results = append(results, out...)
			missing = append(missing, make([]bool, len(chunk))...)
			opt.Record(optimizer.Outcome{ChunkSize: len(chunk), Duration: elapsed, Success: true})
			// Advance by the chunk actually used, then resize for the next one.
			idx += len(chunk)
			size = opt.NextSize(size, elapsed)
			chunkFailures = 0
			continue
		}

		socket := isSocketError(err)
		opt.Record(optimizer.Outcome{ChunkSize: len(chunk), Duration: elapsed, Success: false, SocketError: socket})
		chunkFailures++

		e.logger.Debug("chunk failed",
			slog.String("op", string(op)),
			slog.Int("chunk_size", len(chunk)),
			slog.Int("failures", chunkFailures),
			slog.String("error", err.Error()),
		)

		if chunkFailures > chunkFailureLimit {
			// Degrade to single-address calls for this chunk; failed slots
			// get the sentinel so the output stays length-aligned.
			sentinels := 0
			for _, addr := range chunk {
				v, singleErr := single(ctx, addr)
				failed := singleErr != nil
				if failed {
					e.logger.Warn("single-address read failed, recording sentinel",
						slog.String("op", string(op)),
						slog.String("address", addr.Hex()),
						slog.String("error", singleErr.Error()),
					)
					v = sentinel
					sentinels++
				}
				results = append(results, v)
				missing = append(missing, failed)
			}
			if sentinels > 0 {
				middleware.RecordSentinels(e.network.Name, string(op), sentinels)
			}
			idx += len(chunk)
			size = bounds.Min
			chunkFailures = 0
			continue
		}

		factor := shrinkFactor
		if socket {
			factor = socketShrinkFactor
			jitter := time.Second + time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return nil, nil, apierrors.New(apierrors.KindTransient, "batchread."+string(op), ctx.Err())
			}
		}
		shrunk := int(float64(size) * factor)
		if shrunk < bounds.Min {
			shrunk = bounds.Min
		}
		size = shrunk
		// Do not advance idx: retry the failed chunk at the reduced size.
	}

	return results, missing, nil
}

// IsContract classifies each address, via the aggregator when deployed and
// per-address eth_getCode otherwise. The second slice marks sentinel slots.
func (e *Engine) IsContract(ctx context.Context, addrs []common.Address) ([]bool, []bool, error) {
	if e.network.HasContractChecker() {
		target := common.HexToAddress(e.network.ContractChecker)
		return chunkOperation(ctx, e, optimizer.OpContractCheck, addrs,
			func(ctx context.Context, chunk []common.Address) ([]bool, error) {
				return e.callIsContract(ctx, target, chunk)
			},
			func(ctx context.Context, addr common.Address) (bool, error) {
				return e.codeProbe(ctx, addr)
			},
			false,
		)
	}
	return chunkOperation(ctx, e, optimizer.OpContractCheck, addrs,
		func(ctx context.Context, chunk []common.Address) ([]bool, error) {
			out := make([]bool, len(chunk))
			for i, addr := range chunk {
				has, err := e.codeProbe(ctx, addr)
				if err != nil {
					return nil, err
				}
				out[i] = has
			}
			return out, nil
		},
		func(ctx context.Context, addr common.Address) (bool, error) {
			return e.codeProbe(ctx, addr)
		},
		false,
	)
}

// CodeHashes returns keccak256 of each address's runtime code, the zero hash
// for EOAs. A zero hash with the missing bit set is a failed read, not an
// EOA; callers must not classify those slots.
func (e *Engine) CodeHashes(ctx context.Context, addrs []common.Address) ([]common.Hash, []bool, error) {
	if e.network.HasContractChecker() {
		target := common.HexToAddress(e.network.ContractChecker)
		return chunkOperation(ctx, e, optimizer.OpCodeHash, addrs,
			func(ctx context.Context, chunk []common.Address) ([]common.Hash, error) {
				return e.callCodeHashes(ctx, target, chunk)
			},
			e.codeHashProbe,
			common.Hash{},
		)
	}
	return chunkOperation(ctx, e, optimizer.OpCodeHash, addrs,
		func(ctx context.Context, chunk []common.Address) ([]common.Hash, error) {
			out := make([]common.Hash, len(chunk))
			for i, addr := range chunk {
				h, err := e.codeHashProbe(ctx, addr)
				if err != nil {
					return nil, err
				}
				out[i] = h
			}
			return out, nil
		},
		e.codeHashProbe,
		common.Hash{},
	)
}

// NativeBalances fetches native balances. The aggregator is the designed
// path; the per-address fallback works but is logged as a warning because it
// defeats the batching this engine exists for.
func (e *Engine) NativeBalances(ctx context.Context, addrs []common.Address) ([]*big.Int, []bool, error) {
	if !e.network.HasBalanceHelper() {
		e.logger.Warn("no balance helper deployed, falling back to per-address eth_getBalance")
		return chunkOperation(ctx, e, optimizer.OpNativeBalance, addrs,
			func(ctx context.Context, chunk []common.Address) ([]*big.Int, error) {
				out := make([]*big.Int, len(chunk))
				for i, addr := range chunk {
					bal, err := e.client.Balance(ctx, addr)
					if err != nil {
						return nil, err
					}
					out[i] = bal
				}
				return out, nil
			},
			e.client.Balance,
			big.NewInt(0),
		)
	}
	target := common.HexToAddress(e.network.BalanceHelper)
	return chunkOperation(ctx, e, optimizer.OpNativeBalance, addrs,
		func(ctx context.Context, chunk []common.Address) ([]*big.Int, error) {
			return e.callNativeBalance(ctx, target, chunk)
		},
		e.client.Balance,
		big.NewInt(0),
	)
}

// TokenBalances returns a parallel array of len(holders)*len(tokens) values,
// holder-major, plus a per-holder missing mask. The aggregator is required;
// the shape is validated and retried before anything is surfaced.
func (e *Engine) TokenBalances(ctx context.Context, holders, tokens []common.Address) ([]*big.Int, []bool, error) {
	if len(holders) == 0 || len(tokens) == 0 {
		return nil, nil, nil
	}
	if !e.network.HasBalanceHelper() {
		return nil, nil, apierrors.Newf(apierrors.KindPermanent, "batchread.erc20",
			"no balance helper deployed on %s", e.network.Name)
	}
	target := common.HexToAddress(e.network.BalanceHelper)

	out, missing, err := chunkOperation(ctx, e, optimizer.OpERC20, holders,
		func(ctx context.Context, chunk []common.Address) ([][]*big.Int, error) {
			flat, err := e.callTokenBalanceValidated(ctx, target, chunk, tokens)
			if err != nil {
				return nil, err
			}
			rows := make([][]*big.Int, len(chunk))
			for i := range chunk {
				rows[i] = flat[i*len(tokens) : (i+1)*len(tokens)]
			}
			return rows, nil
		},
		func(ctx context.Context, holder common.Address) ([]*big.Int, error) {
			flat, err := e.callTokenBalanceValidated(ctx, target, []common.Address{holder}, tokens)
			if err != nil {
				return nil, err
			}
			return flat, nil
		},
		zeroRow(len(tokens)),
	)
	if err != nil {
		return nil, nil, err
	}

	flat := make([]*big.Int, 0, len(holders)*len(tokens))
	for _, row := range out {
		flat = append(flat, row...)
	}
	return flat, missing, nil
}

// callTokenBalanceValidated enforces |result| == |holders| x |tokens| with
// bounded retries; a persistent mismatch is a hard error, never persisted.
func (e *Engine) callTokenBalanceValidated(ctx context.Context, target common.Address, holders, tokens []common.Address) ([]*big.Int, error) {
	want := len(holders) * len(tokens)
	var lastErr error
	for attempt := 1; attempt <= shapeRetries; attempt++ {
		flat, err := e.callTokenBalance(ctx, target, holders, tokens)
		if err != nil {
			return nil, err
		}
		if len(flat) == want {
			return flat, nil
		}
		lastErr = apierrors.Newf(apierrors.KindShapeMismatch, "batchread.erc20",
			"got %d balances for %d holders x %d tokens", len(flat), len(holders), len(tokens))
		e.logger.Warn("token balance shape mismatch, retrying",
			slog.Int("attempt", attempt),
			slog.Int("got", len(flat)),
			slog.Int("want", want),
		)
		select {
		case <-time.After(time.Duration(attempt) * shapeBackoff):
		case <-ctx.Done():
			return nil, apierrors.New(apierrors.KindTransient, "batchread.erc20", ctx.Err())
		}
	}
	return nil, lastErr
}

func zeroRow(n int) []*big.Int {
	row := make([]*big.Int, n)
	for i := range row {
		row[i] = big.NewInt(0)
	}
	return row
}

// codeProbe reduces eth_getCode to has-code.
func (e *Engine) codeProbe(ctx context.Context, addr common.Address) (bool, error) {
	code, err := e.client.Code(ctx, addr)
	if err != nil {
		return false, err
	}
	return code != "" && code != "0x", nil
}

// codeHashProbe computes keccak256 of the runtime code, zero hash when empty.
func (e *Engine) codeHashProbe(ctx context.Context, addr common.Address) (common.Hash, error) {
	code, err := e.client.Code(ctx, addr)
	if err != nil {
		return common.Hash{}, err
	}
	if code == "" || code == "0x" {
		return common.Hash{}, nil
	}
	return crypto.Keccak256Hash(common.FromHex(code)), nil
}

func (e *Engine) callIsContract(ctx context.Context, target common.Address, chunk []common.Address) ([]bool, error) {
	data, err := validatorABI.Pack("isContract", chunk)
	if err != nil {
		return nil, err
	}
	raw, err := e.client.CallContract(ctx, target, data)
	if err != nil {
		return nil, err
	}
	vals, err := validatorABI.Unpack("isContract", raw)
	if err != nil {
		return nil, err
	}
	return vals[0].([]bool), nil
}

func (e *Engine) callCodeHashes(ctx context.Context, target common.Address, chunk []common.Address) ([]common.Hash, error) {
	data, err := validatorABI.Pack("getCodeHashes", chunk)
	if err != nil {
		return nil, err
	}
	raw, err := e.client.CallContract(ctx, target, data)
	if err != nil {
		return nil, err
	}
	vals, err := validatorABI.Unpack("getCodeHashes", raw)
	if err != nil {
		return nil, err
	}
	packed := vals[0].([][32]byte)
	out := make([]common.Hash, len(packed))
	for i, h := range packed {
		out[i] = common.Hash(h)
	}
	return out, nil
}

func (e *Engine) callNativeBalance(ctx context.Context, target common.Address, chunk []common.Address) ([]*big.Int, error) {
	data, err := balanceABI.Pack("getNativeBalance", chunk)
	if err != nil {
		return nil, err
	}
	raw, err := e.client.CallContract(ctx, target, data)
	if err != nil {
		return nil, err
	}
	vals, err := balanceABI.Unpack("getNativeBalance", raw)
	if err != nil {
		return nil, err
	}
	return vals[0].([]*big.Int), nil
}

func (e *Engine) callTokenBalance(ctx context.Context, target common.Address, holders, tokens []common.Address) ([]*big.Int, error) {
	data, err := balanceABI.Pack("getTokenBalance", holders, tokens)
	if err != nil {
		return nil, err
	}
	raw, err := e.client.CallContract(ctx, target, data)
	if err != nil {
		return nil, err
	}
	vals, err := balanceABI.Unpack("getTokenBalance", raw)
	if err != nil {
		return nil, err
	}
	return vals[0].([]*big.Int), nil
}
