// Package builder turns quotes and liquidity requests into exact, bounded,
// chain-ready parameters. It never touches the network.
package builder

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"github.com/ggonzalez94/dex-cli/internal/quote"
	"github.com/ggonzalez94/dex-cli/internal/signer"
)

const (
	DefaultSlippageBps int64 = 50
	DefaultDeadline          = time.Hour

	bpsDenominator = 10_000
)

type Policy struct {
	SlippageBps int64
	Deadline    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{SlippageBps: DefaultSlippageBps, Deadline: DefaultDeadline}
}

func (p Policy) Validate() error {
	if p.SlippageBps < 0 || p.SlippageBps >= bpsDenominator {
		return clierr.New(clierr.CodeUsage, "slippage must be in [0, 10000) bps")
	}
	if p.Deadline <= 0 {
		return clierr.New(clierr.CodeUsage, "deadline window must be positive")
	}
	return nil
}

// MinimumOut is floor(q * (10000 - bps) / 10000).
func MinimumOut(q *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(q, big.NewInt(bpsDenominator-bps))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// MaximumIn is ceil(q * (10000 + bps) / 10000).
func MaximumIn(q *big.Int, bps int64) *big.Int {
	num := new(big.Int).Mul(q, big.NewInt(bpsDenominator+bps))
	den := big.NewInt(bpsDenominator)
	out, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() > 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

type Builder struct {
	policy Policy
	now    func() time.Time
}

func New(policy Policy) (*Builder, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Builder{policy: policy, now: time.Now}, nil
}

func (b *Builder) Policy() Policy { return b.policy }

// Swap is one submission's worth of router parameters. Exactly one of
// ExactInput and ExactOutput is set.
type Swap struct {
	Quote       quote.Quote
	Recipient   common.Address
	Deadline    time.Time
	ExactInput  *chain.ExactInputParams
	ExactOutput *chain.ExactOutputParams
}

// Bound is amountOutMinimum for exact-input swaps and amountInMaximum for
// exact-output swaps.
func (s Swap) Bound() *big.Int {
	if s.ExactOutput != nil {
		return s.ExactOutput.AmountInMaximum
	}
	if s.ExactInput != nil {
		return s.ExactInput.AmountOutMinimum
	}
	return nil
}

// Spend is the most tokenIn the swap can pull from the account.
func (s Swap) Spend() *big.Int {
	if s.ExactOutput != nil {
		return s.ExactOutput.AmountInMaximum
	}
	if s.ExactInput != nil {
		return s.ExactInput.AmountIn
	}
	return nil
}

func (b *Builder) Swap(account signer.Account, q quote.Quote) (Swap, error) {
	recipient, err := signer.Connected(account)
	if err != nil {
		return Swap{}, err
	}
	if q.AmountIn == nil || q.AmountOut == nil {
		return Swap{}, clierr.New(clierr.CodeUsage, "quote is incomplete")
	}
	if len(q.Route) == 0 {
		return Swap{}, clierr.New(clierr.CodeNoRoute, "quote has no route")
	}
	deadline := b.now().Add(b.policy.Deadline)
	limit := q.PriceLimit
	if limit == nil {
		limit = dex.PriceLimit(q.TokenIn, q.TokenOut)
	}
	out := Swap{Quote: q, Recipient: recipient, Deadline: deadline}
	if q.ExactOutput {
		out.ExactOutput = &chain.ExactOutputParams{
			TokenIn:           q.TokenIn.Addr(),
			TokenOut:          q.TokenOut.Addr(),
			IndexPath:         append([]uint32(nil), q.Route...),
			Recipient:         recipient,
			Deadline:          big.NewInt(deadline.Unix()),
			AmountOut:         new(big.Int).Set(q.AmountOut),
			AmountInMaximum:   MaximumIn(q.AmountIn, b.policy.SlippageBps),
			SqrtPriceLimitX96: new(big.Int).Set(limit),
		}
		return out, nil
	}
	out.ExactInput = &chain.ExactInputParams{
		TokenIn:           q.TokenIn.Addr(),
		TokenOut:          q.TokenOut.Addr(),
		IndexPath:         append([]uint32(nil), q.Route...),
		Recipient:         recipient,
		Deadline:          big.NewInt(deadline.Unix()),
		AmountIn:          new(big.Int).Set(q.AmountIn),
		AmountOutMinimum:  MinimumOut(q.AmountOut, b.policy.SlippageBps),
		SqrtPriceLimitX96: new(big.Int).Set(limit),
	}
	return out, nil
}

type PoolCreation struct {
	Token0 dex.Token
	Token1 dex.Token
	Params chain.CreatePoolParams
}

// CreatePool orders the pair canonically and prices the pool at the 1:1
// nominal default from dex.InitialSqrtPriceX96.
func (b *Builder) CreatePool(tokenA, tokenB dex.Token, fee uint32) (PoolCreation, error) {
	if err := dex.ValidateFee(fee); err != nil {
		return PoolCreation{}, err
	}
	token0, token1, err := dex.SortTokens(tokenA, tokenB)
	if err != nil {
		return PoolCreation{}, err
	}
	lower, upper := dex.TickRangeForFee(fee)
	return PoolCreation{
		Token0: token0,
		Token1: token1,
		Params: chain.CreatePoolParams{
			Token0:       token0.Addr(),
			Token1:       token1.Addr(),
			Fee:          new(big.Int).SetUint64(uint64(fee)),
			TickLower:    big.NewInt(int64(lower)),
			TickUpper:    big.NewInt(int64(upper)),
			SqrtPriceX96: dex.InitialSqrtPriceX96(token0, token1),
		},
	}, nil
}

type Liquidity struct {
	Pool      dex.Pool
	Token0    dex.Token
	Token1    dex.Token
	Recipient common.Address
	Deadline  time.Time
	Params    chain.MintParams
}

// AddLiquidity scales each human amount with its own token's decimals and
// swaps them into the pool's canonical order.
func (b *Builder) AddLiquidity(account signer.Account, pool dex.Pool, tokenA, tokenB dex.Token, amountA, amountB string) (Liquidity, error) {
	recipient, err := signer.Connected(account)
	if err != nil {
		return Liquidity{}, err
	}
	token0, token1, err := dex.SortTokens(tokenA, tokenB)
	if err != nil {
		return Liquidity{}, err
	}
	if !pool.Matches(token0, token1) {
		return Liquidity{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("pool %d does not trade %s/%s", pool.Index, tokenA, tokenB))
	}
	scaledA, err := id.ParseUnits(amountA, tokenA.Decimals)
	if err != nil {
		return Liquidity{}, err
	}
	scaledB, err := id.ParseUnits(amountB, tokenB.Decimals)
	if err != nil {
		return Liquidity{}, err
	}
	if scaledA.Sign() == 0 && scaledB.Sign() == 0 {
		return Liquidity{}, clierr.New(clierr.CodeUsage, "at least one liquidity amount must be greater than zero")
	}
	amount0, amount1 := scaledA, scaledB
	if token0.Key() != tokenA.Key() {
		amount0, amount1 = scaledB, scaledA
	}
	deadline := b.now().Add(b.policy.Deadline)
	return Liquidity{
		Pool:      pool,
		Token0:    token0,
		Token1:    token1,
		Recipient: recipient,
		Deadline:  deadline,
		Params: chain.MintParams{
			Token0:         token0.Addr(),
			Token1:         token1.Addr(),
			Index:          pool.Index,
			Amount0Desired: amount0,
			Amount1Desired: amount1,
			Recipient:      recipient,
			Deadline:       big.NewInt(deadline.Unix()),
		},
	}, nil
}

// Approval is an ERC20 allowance the spender needs before a submission.
type Approval struct {
	Token   dex.Token
	Spender common.Address
	Amount  *big.Int
}

func (b *Builder) SwapApprovals(s Swap, spenders chain.Spenders) []Approval {
	spend := s.Spend()
	if spend == nil || spend.Sign() == 0 {
		return []Approval{}
	}
	return []Approval{{Token: s.Quote.TokenIn, Spender: spenders.SwapRouter, Amount: new(big.Int).Set(spend)}}
}

func (b *Builder) LiquidityApprovals(l Liquidity, spenders chain.Spenders) []Approval {
	out := []Approval{}
	if l.Params.Amount0Desired != nil && l.Params.Amount0Desired.Sign() > 0 {
		out = append(out, Approval{Token: l.Token0, Spender: spenders.PositionManager, Amount: new(big.Int).Set(l.Params.Amount0Desired)})
	}
	if l.Params.Amount1Desired != nil && l.Params.Amount1Desired.Sign() > 0 {
		out = append(out, Approval{Token: l.Token1, Spender: spenders.PositionManager, Amount: new(big.Int).Set(l.Params.Amount1Desired)})
	}
	return out
}
