// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/dex"
)

// Fake records every call and answers from its fields. Hooks, when set,
// override the canned answers.
type Fake struct {
	mu    sync.Mutex
	calls []string

	Pools           []dex.Pool
	Positions       []chain.Position
	Balances        map[string]*big.Int
	AllowanceAmount *big.Int
	Tokens          map[string]dex.Token

	QuoteIn  func(ctx context.Context, p chain.QuoteParams) (*big.Int, error)
	QuoteOut func(ctx context.Context, p chain.QuoteParams) (*big.Int, error)
	Send     func(ctx context.Context, method string, params any) (common.Hash, error)
	Wait     func(ctx context.Context, hash common.Hash) (chain.Receipt, error)

	LastExactInput  *chain.ExactInputParams
	LastExactOutput *chain.ExactOutputParams
	LastCreatePool  *chain.CreatePoolParams
	LastMint        *chain.MintParams
	LastQuote       *chain.QuoteParams
	Approvals       int

	nonce uint64
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

// Calls returns a copy of the recorded method names in call order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) Count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *Fake) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *Fake) Spenders() chain.Spenders {
	return chain.Spenders{
		SwapRouter:      common.HexToAddress("0x00000000000000000000000000000000000000a3"),
		PositionManager: common.HexToAddress("0x00000000000000000000000000000000000000a2"),
	}
}

func (f *Fake) GetAllPools(context.Context) ([]dex.Pool, error) {
	f.record("GetAllPools")
	return append([]dex.Pool(nil), f.Pools...), nil
}

func (f *Fake) GetAllPositions(context.Context) ([]chain.Position, error) {
	f.record("GetAllPositions")
	return append([]chain.Position(nil), f.Positions...), nil
}

func (f *Fake) QuoteExactInput(ctx context.Context, p chain.QuoteParams) (*big.Int, error) {
	f.record("QuoteExactInput")
	f.mu.Lock()
	f.LastQuote = &p
	f.mu.Unlock()
	if f.QuoteIn != nil {
		return f.QuoteIn(ctx, p)
	}
	return new(big.Int).Set(p.Amount), nil
}

func (f *Fake) QuoteExactOutput(ctx context.Context, p chain.QuoteParams) (*big.Int, error) {
	f.record("QuoteExactOutput")
	f.mu.Lock()
	f.LastQuote = &p
	f.mu.Unlock()
	if f.QuoteOut != nil {
		return f.QuoteOut(ctx, p)
	}
	return new(big.Int).Set(p.Amount), nil
}

func (f *Fake) send(ctx context.Context, method string, params any) (common.Hash, error) {
	f.record(method)
	if f.Send != nil {
		return f.Send(ctx, method, params)
	}
	f.mu.Lock()
	f.nonce++
	n := f.nonce
	f.mu.Unlock()
	return common.BigToHash(new(big.Int).SetUint64(n)), nil
}

func (f *Fake) CreateAndInitializePoolIfNecessary(ctx context.Context, p chain.CreatePoolParams) (common.Hash, error) {
	f.mu.Lock()
	f.LastCreatePool = &p
	f.mu.Unlock()
	return f.send(ctx, "CreateAndInitializePoolIfNecessary", p)
}

func (f *Fake) Mint(ctx context.Context, p chain.MintParams) (common.Hash, error) {
	f.mu.Lock()
	f.LastMint = &p
	f.mu.Unlock()
	return f.send(ctx, "Mint", p)
}

func (f *Fake) Burn(ctx context.Context, positionID *big.Int) (common.Hash, error) {
	return f.send(ctx, "Burn", positionID)
}

func (f *Fake) Collect(ctx context.Context, positionID *big.Int, recipient common.Address) (common.Hash, error) {
	return f.send(ctx, "Collect", []any{positionID, recipient})
}

func (f *Fake) ExactInput(ctx context.Context, p chain.ExactInputParams) (common.Hash, error) {
	f.mu.Lock()
	f.LastExactInput = &p
	f.mu.Unlock()
	return f.send(ctx, "ExactInput", p)
}

func (f *Fake) ExactOutput(ctx context.Context, p chain.ExactOutputParams) (common.Hash, error) {
	f.mu.Lock()
	f.LastExactOutput = &p
	f.mu.Unlock()
	return f.send(ctx, "ExactOutput", p)
}

func (f *Fake) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	f.Approvals++
	f.mu.Unlock()
	return f.send(ctx, "Approve", []any{token, spender, amount})
}

func (f *Fake) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	f.record("Allowance")
	if f.AllowanceAmount == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(f.AllowanceAmount), nil
}

func (f *Fake) BalanceOf(_ context.Context, token, _ common.Address) (*big.Int, error) {
	f.record("BalanceOf")
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.Balances[strings.ToLower(token.Hex())]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *Fake) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	f.record("NativeBalance")
	return big.NewInt(1_000_000_000_000_000_000), nil
}

func (f *Fake) TokenMetadata(_ context.Context, token common.Address) (dex.Token, error) {
	f.record("TokenMetadata")
	if t, ok := f.Tokens[strings.ToLower(token.Hex())]; ok {
		return t, nil
	}
	return dex.Token{}, fmt.Errorf("unknown token %s", token.Hex())
}

func (f *Fake) WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (chain.Receipt, error) {
	f.record("WaitForTransactionReceipt")
	if f.Wait != nil {
		return f.Wait(ctx, hash)
	}
	return chain.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: 1}, nil
}

var _ chain.Client = (*Fake)(nil)
