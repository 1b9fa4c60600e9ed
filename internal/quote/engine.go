// Package quote resolves routes and prices trades through the router's
// read-only quote functions.
package quote

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"go.uber.org/zap"
)

// Quote is a priced trade. Amounts are kept at full precision; only Display
// rounds.
type Quote struct {
	TokenIn     dex.Token
	TokenOut    dex.Token
	AmountIn    *big.Int
	AmountOut   *big.Int
	Route       []uint32
	PriceLimit  *big.Int
	ExactOutput bool
	QuotedAt    time.Time
}

// Counter is the amount the chain computed: the output of an exact-input
// quote or the input of an exact-output quote.
func (q Quote) Counter() *big.Int {
	if q.ExactOutput {
		return q.AmountIn
	}
	return q.AmountOut
}

func (q Quote) CounterToken() dex.Token {
	if q.ExactOutput {
		return q.TokenIn
	}
	return q.TokenOut
}

// Display renders the counter amount with four fixed decimals.
func (q Quote) Display() string {
	return id.FormatFixed(q.Counter(), q.CounterToken().Decimals, id.DisplayPlaces)
}

// SnapshotTTL is how long a loaded pool snapshot serves route lookups
// before it is read from the chain again.
const SnapshotTTL = 15 * time.Second

type Engine struct {
	log *zap.Logger
	now func() time.Time
	ttl time.Duration

	mu       sync.Mutex
	pools    []dex.Pool
	loadedAt time.Time
}

func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log, now: time.Now, ttl: SnapshotTTL}
}

// Refresh reloads the pool snapshot used for route discovery.
func (e *Engine) Refresh(ctx context.Context, client chain.Client) ([]dex.Pool, error) {
	if client == nil {
		return nil, clierr.New(clierr.CodeNotConnected, "no chain client available")
	}
	pools, err := client.GetAllPools(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	e.mu.Lock()
	e.pools = pools
	e.loadedAt = e.now()
	e.mu.Unlock()
	e.log.Debug("pool snapshot refreshed", zap.Int("pools", len(pools)))
	return pools, nil
}

// Invalidate drops the pool snapshot so the next route lookup reloads it.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.pools = nil
	e.mu.Unlock()
}

// Route returns the pools for the pair. A snapshot older than the TTL is
// reloaded, and so is one that lacks the pair, since the pool may have been
// created after it was taken.
func (e *Engine) Route(ctx context.Context, client chain.Client, a, b dex.Token) ([]dex.Pool, error) {
	e.mu.Lock()
	pools := e.pools
	fresh := pools != nil && e.now().Sub(e.loadedAt) < e.ttl
	e.mu.Unlock()
	if fresh {
		if found := dex.FindPools(pools, a, b); len(found) > 0 {
			return found, nil
		}
	}
	pools, err := e.Refresh(ctx, client)
	if err != nil {
		return nil, err
	}
	return dex.FindPools(pools, a, b), nil
}

func (e *Engine) QuoteExactInput(ctx context.Context, client chain.Client, tokenIn, tokenOut dex.Token, amountIn *big.Int) (Quote, error) {
	return e.quote(ctx, client, tokenIn, tokenOut, amountIn, false)
}

func (e *Engine) QuoteExactOutput(ctx context.Context, client chain.Client, tokenIn, tokenOut dex.Token, amountOut *big.Int) (Quote, error) {
	return e.quote(ctx, client, tokenIn, tokenOut, amountOut, true)
}

func (e *Engine) quote(ctx context.Context, client chain.Client, tokenIn, tokenOut dex.Token, amount *big.Int, exactOutput bool) (Quote, error) {
	if client == nil {
		return Quote{}, clierr.New(clierr.CodeNotConnected, "no chain client available")
	}
	if amount == nil || amount.Sign() <= 0 {
		return Quote{}, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}
	pools, err := e.Route(ctx, client, tokenIn, tokenOut)
	if err != nil {
		return Quote{}, err
	}
	if len(pools) == 0 {
		return Quote{}, clierr.New(clierr.CodeNoRoute, fmt.Sprintf("no pool for %s/%s", tokenIn, tokenOut))
	}
	params := chain.QuoteParams{
		TokenIn:           tokenIn.Addr(),
		TokenOut:          tokenOut.Addr(),
		IndexPath:         dex.RouteIndexes(pools),
		Amount:            new(big.Int).Set(amount),
		SqrtPriceLimitX96: dex.PriceLimit(tokenIn, tokenOut),
	}
	q := Quote{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		Route:       params.IndexPath,
		PriceLimit:  params.SqrtPriceLimitX96,
		ExactOutput: exactOutput,
	}
	if exactOutput {
		in, err := client.QuoteExactOutput(ctx, params)
		if err != nil {
			return Quote{}, e.fail(err, tokenIn, tokenOut)
		}
		q.AmountIn, q.AmountOut = in, params.Amount
	} else {
		out, err := client.QuoteExactInput(ctx, params)
		if err != nil {
			return Quote{}, e.fail(err, tokenIn, tokenOut)
		}
		q.AmountIn, q.AmountOut = params.Amount, out
	}
	if q.Counter() == nil {
		return Quote{}, clierr.New(clierr.CodeUnknown, "quote returned no amount")
	}
	q.QuotedAt = e.now()
	e.log.Debug("quote",
		zap.String("token_in", tokenIn.Key()),
		zap.String("token_out", tokenOut.Key()),
		zap.String("amount_in", q.AmountIn.String()),
		zap.String("amount_out", q.AmountOut.String()),
		zap.Uint32s("route", q.Route),
		zap.Bool("exact_output", exactOutput),
	)
	return q, nil
}

func (e *Engine) fail(err error, tokenIn, tokenOut dex.Token) error {
	classified := Classify(err)
	if revert, ok := chain.AsRevert(err); ok {
		e.log.Warn("quote reverted",
			zap.String("token_in", tokenIn.Key()),
			zap.String("token_out", tokenOut.Key()),
			zap.String("reason", revert.Reason),
		)
	}
	return classified
}
