package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/chain/chaintest"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

var (
	tokenA = dex.Token{Address: "0xc5C45CAe44dA4eD5F767d38ADBa00C7B56125fDa", Symbol: "AWY", Decimals: 18}
	tokenB = dex.Token{Address: "0x8F8d4529C06b9f8A8EA2049de9fcE5FBE99453CC", Symbol: "BWY", Decimals: 18}
	tokenU = dex.Token{Address: "0x1111111111111111111111111111111111111111", Symbol: "USDC", Decimals: 6}
)

func poolFor(a, b dex.Token, fee, index uint32) dex.Pool {
	t0, t1, _ := dex.SortTokens(a, b)
	return dex.Pool{Token0: t0.Addr(), Token1: t1.Addr(), Fee: fee, Index: index}
}

func TestQuoteExactInputNoRouteBeforeQuoteCall(t *testing.T) {
	fake := &chaintest.Fake{}
	engine := NewEngine(nil)

	_, err := engine.QuoteExactInput(context.Background(), fake, tokenA, tokenB, big.NewInt(1))
	if !clierr.IsCode(err, clierr.CodeNoRoute) {
		t.Fatalf("expected no route error, got %v", err)
	}
	if fake.Count("QuoteExactInput") != 0 {
		t.Fatalf("expected no quote call, got %v", fake.Calls())
	}
}

func TestQuoteExactInputNoRouteWithLoadedSnapshotMakesNoQuoteCall(t *testing.T) {
	fake := &chaintest.Fake{Pools: []dex.Pool{poolFor(tokenU, tokenB, 500, 0)}}
	engine := NewEngine(nil)
	if _, err := engine.Refresh(context.Background(), fake); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	fake.Reset()

	_, err := engine.QuoteExactInput(context.Background(), fake, tokenA, tokenB, big.NewInt(1))
	if !clierr.IsCode(err, clierr.CodeNoRoute) {
		t.Fatalf("expected no route error, got %v", err)
	}
	if calls := fake.Calls(); len(calls) != 1 || calls[0] != "GetAllPools" {
		t.Fatalf("expected only a pool reload, got %v", calls)
	}
}

func TestRouteReloadsWhenPairMissingFromSnapshot(t *testing.T) {
	fake := &chaintest.Fake{Pools: []dex.Pool{poolFor(tokenU, tokenB, 500, 0)}}
	engine := NewEngine(nil)
	if _, err := engine.Refresh(context.Background(), fake); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	fake.Pools = append(fake.Pools, poolFor(tokenA, tokenB, 3000, 1))

	pools, err := engine.Route(context.Background(), fake, tokenA, tokenB)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(pools) != 1 || pools[0].Index != 1 {
		t.Fatalf("expected the newly created pool, got %+v", pools)
	}
	if n := fake.Count("GetAllPools"); n != 2 {
		t.Fatalf("expected a reload, got %d loads", n)
	}
}

func TestRouteReloadsExpiredSnapshot(t *testing.T) {
	fake := &chaintest.Fake{Pools: []dex.Pool{poolFor(tokenA, tokenB, 3000, 0)}}
	now := time.Unix(1_700_000_000, 0)
	engine := NewEngine(nil)
	engine.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, err := engine.Route(context.Background(), fake, tokenA, tokenB); err != nil {
			t.Fatalf("Route failed: %v", err)
		}
	}
	if n := fake.Count("GetAllPools"); n != 1 {
		t.Fatalf("expected the snapshot to be reused, got %d loads", n)
	}

	now = now.Add(SnapshotTTL)
	if _, err := engine.Route(context.Background(), fake, tokenA, tokenB); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if n := fake.Count("GetAllPools"); n != 2 {
		t.Fatalf("expected an expired snapshot to reload, got %d loads", n)
	}
}

func TestQuoteExactInputCarriesFullRouteAndPriceLimit(t *testing.T) {
	hundred, _ := new(big.Int).SetString("100000000000000000000", 10)
	fake := &chaintest.Fake{
		Pools: []dex.Pool{poolFor(tokenA, tokenB, 3000, 1), poolFor(tokenA, tokenB, 500, 4)},
		QuoteIn: func(_ context.Context, p chain.QuoteParams) (*big.Int, error) {
			return hundred, nil
		},
	}
	engine := NewEngine(nil)
	amountIn, _ := new(big.Int).SetString("100000000000000000000", 10)

	q, err := engine.QuoteExactInput(context.Background(), fake, tokenA, tokenB, amountIn)
	if err != nil {
		t.Fatalf("QuoteExactInput failed: %v", err)
	}
	if len(q.Route) != 2 || q.Route[0] != 4 || q.Route[1] != 1 {
		t.Fatalf("expected route [4 1], got %v", q.Route)
	}
	// AWY (0xc5..) sorts after BWY (0x8f..), so it is token1 and the price moves up
	if want := new(big.Int).Sub(dex.MaxSqrtRatio, big.NewInt(1)); fake.LastQuote.SqrtPriceLimitX96.Cmp(want) != 0 {
		t.Fatalf("unexpected price limit %s", fake.LastQuote.SqrtPriceLimitX96)
	}
	if q.AmountOut.Cmp(hundred) != 0 {
		t.Fatalf("expected full precision amount out, got %s", q.AmountOut)
	}
	if q.Display() != "100.0000" {
		t.Fatalf("expected display 100.0000, got %s", q.Display())
	}
	if q.QuotedAt.IsZero() {
		t.Fatal("expected quote timestamp")
	}
}

func TestQuoteExactOutputDisplaysInputInItsOwnDecimals(t *testing.T) {
	fake := &chaintest.Fake{
		Pools: []dex.Pool{poolFor(tokenU, tokenB, 500, 0)},
		QuoteOut: func(context.Context, chain.QuoteParams) (*big.Int, error) {
			return big.NewInt(1_512_345), nil
		},
	}
	engine := NewEngine(nil)
	q, err := engine.QuoteExactOutput(context.Background(), fake, tokenU, tokenB, big.NewInt(1))
	if err != nil {
		t.Fatalf("QuoteExactOutput failed: %v", err)
	}
	if !q.ExactOutput || q.Counter().Int64() != 1_512_345 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if q.Display() != "1.5123" {
		t.Fatalf("expected 6-decimal display 1.5123, got %s", q.Display())
	}
}

func TestQuoteRejectsNonPositiveAmount(t *testing.T) {
	engine := NewEngine(nil)
	if _, err := engine.QuoteExactInput(context.Background(), &chaintest.Fake{}, tokenA, tokenB, big.NewInt(0)); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, err := engine.QuoteExactInput(context.Background(), nil, tokenA, tokenB, big.NewInt(1)); !clierr.IsCode(err, clierr.CodeNotConnected) {
		t.Fatalf("expected not connected error, got %v", err)
	}
}

func TestQuoteClassifiesRevert(t *testing.T) {
	fake := &chaintest.Fake{
		Pools: []dex.Pool{poolFor(tokenA, tokenB, 3000, 0)},
		QuoteIn: func(context.Context, chain.QuoteParams) (*big.Int, error) {
			return nil, &chain.RevertError{Reason: "SPL"}
		},
	}
	_, err := NewEngine(nil).QuoteExactInput(context.Background(), fake, tokenA, tokenB, big.NewInt(10))
	if !clierr.IsCode(err, clierr.CodePriceLimit) {
		t.Fatalf("expected price limit error, got %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want clierr.Code
	}{
		{"price limit", &chain.RevertError{Reason: "SPL"}, clierr.CodePriceLimit},
		{"slippage", &chain.RevertError{Reason: "Too little received"}, clierr.CodePriceLimit},
		{"liquidity", &chain.RevertError{Reason: "insufficient liquidity"}, clierr.CodeInsufficientLiquidity},
		{"transfer", &chain.RevertError{Reason: "STF"}, clierr.CodeInsufficientBalance},
		{"erc20 balance", &chain.RevertError{Reason: "ERC20: transfer amount exceeds balance"}, clierr.CodeInsufficientBalance},
		{"bare revert", &chain.RevertError{}, clierr.CodeReverted},
		{"other revert", &chain.RevertError{Reason: "LOK"}, clierr.CodeReverted},
		{"deadline", context.DeadlineExceeded, clierr.CodeTimeout},
		{"net timeout", fmt.Errorf("post: %w", timeoutErr{}), clierr.CodeTimeout},
		{"gas funds", errors.New("insufficient funds for gas * price + value"), clierr.CodeInsufficientBalance},
		{"unknown", errors.New("boom"), clierr.CodeUnknown},
		{"unavailable", clierr.Wrap(clierr.CodeUnavailable, "connect rpc", errors.New("refused")), clierr.CodeUnknown},
		{"passthrough", clierr.New(clierr.CodeNotConnected, "no wallet"), clierr.CodeNotConnected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			typed, ok := clierr.As(got)
			if !ok || typed.Code != tc.want {
				t.Fatalf("expected code %d, got %v", tc.want, got)
			}
		})
	}
	if Classify(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	// a short code only matches as a whole word
	if typed, _ := clierr.As(Classify(&chain.RevertError{Reason: "STFU"})); typed.Code != clierr.CodeReverted {
		t.Fatalf("expected STFU to stay a generic revert, got %v", typed)
	}
}

func TestClassifiedMessagesDoNotLeakRawText(t *testing.T) {
	err := Classify(&chain.RevertError{Reason: "0xdeadbeef internal"})
	if got := clierr.UserMessage(err); got != "transaction failed" {
		t.Fatalf("expected generic message, got %q", got)
	}
}

func TestDebouncerSupersedesPendingTask(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Close()

	var mu sync.Mutex
	var ran []int
	done := make(chan struct{}, 2)
	first := d.Schedule(context.Background(), func(Ticket) {
		mu.Lock()
		ran = append(ran, 1)
		mu.Unlock()
		done <- struct{}{}
	})
	second := d.Schedule(context.Background(), func(tk Ticket) {
		mu.Lock()
		ran = append(ran, 2)
		mu.Unlock()
		if !tk.Current() {
			t.Error("expected running ticket to be current")
		}
		done <- struct{}{}
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced task never ran")
	}
	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != 2 {
		t.Fatalf("expected only the latest task to run, got %v", ran)
	}
	if first.Current() {
		t.Fatal("superseded ticket must not be current")
	}
	if first.Context().Err() == nil {
		t.Fatal("superseded ticket context must be cancelled")
	}
	if !second.Current() {
		t.Fatal("latest ticket should still be current")
	}
}

func TestDebouncerCloseCancelsPending(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	fired := make(chan struct{}, 1)
	ticket := d.Schedule(context.Background(), func(Ticket) { fired <- struct{}{} })
	d.Close()

	select {
	case <-fired:
		t.Fatal("task fired after close")
	case <-time.After(50 * time.Millisecond):
	}
	if ticket.Current() || ticket.Context().Err() == nil {
		t.Fatal("expected closed ticket to be stale and cancelled")
	}
	after := d.Schedule(context.Background(), func(Ticket) { fired <- struct{}{} })
	if after.Current() {
		t.Fatal("schedule after close must return a dead ticket")
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Close()
	fired := make(chan struct{}, 1)
	ticket := d.Schedule(context.Background(), func(Ticket) { fired <- struct{}{} })
	d.Cancel()
	select {
	case <-fired:
		t.Fatal("task fired after cancel")
	case <-time.After(40 * time.Millisecond):
	}
	if ticket.Current() {
		t.Fatal("cancelled ticket must not be current")
	}
}
