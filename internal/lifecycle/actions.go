package lifecycle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/dex-cli/internal/builder"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/journal"
	"github.com/ggonzalez94/dex-cli/internal/quote"
	"github.com/ggonzalez94/dex-cli/internal/signer"
	"go.uber.org/zap"
)

// Swap quotes the form inputs, builds bounded router parameters, approves
// the router when needed, submits and waits for the receipt.
func (c *Controller) Swap(ctx context.Context) (Result, error) {
	r, err := c.begin(ActionSwap)
	if err != nil {
		return Result{}, err
	}
	defer c.end()

	form := c.Form()
	if err := c.validate(form); err != nil {
		return r.reject(err)
	}
	if c.client == nil {
		return r.reject(clierr.New(clierr.CodeNotConnected, "no chain client available"))
	}
	defer r.loading()()
	ctx, cancel := c.scoped(ctx)
	defer cancel()

	pools, err := c.engine.Route(ctx, c.client, form.From, form.To)
	if err != nil {
		return r.fail(err)
	}
	if len(pools) == 0 {
		return r.fail(clierr.New(clierr.CodeNoRoute, fmt.Sprintf("no pool for %s/%s", form.From, form.To)))
	}

	q, form, err := r.freshQuote(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.result.Quote = &q

	swap, err := c.builder.Swap(c.account, q)
	if err != nil {
		return r.fail(err)
	}
	r.result.Swap = &swap
	r.record.Account = swap.Recipient.Hex()
	r.detail("token_in", q.TokenIn.Key())
	r.detail("token_out", q.TokenOut.Key())
	r.detail("amount_in", q.AmountIn.String())
	r.detail("amount_out", q.AmountOut.String())
	r.detail("bound", swap.Bound().String())
	r.detail("route", fmt.Sprint(q.Route))
	r.detail("deadline", swap.Deadline.UTC().Format(time.RFC3339))
	if form.From.Balance != nil && swap.Spend().Cmp(form.From.Balance) > 0 {
		return r.fail(clierr.New(clierr.CodeInsufficientBalance, fmt.Sprintf("swap may spend more than the %s balance", form.From)))
	}

	if err := r.approve(ctx, swap.Recipient, c.builder.SwapApprovals(swap, c.client.Spenders())); err != nil {
		return r.fail(err)
	}
	if err := r.submit(ctx, func(ctx context.Context) (common.Hash, error) {
		if swap.ExactOutput != nil {
			return c.client.ExactOutput(ctx, *swap.ExactOutput)
		}
		return c.client.ExactInput(ctx, *swap.ExactInput)
	}); err != nil {
		return r.fail(err)
	}
	return r.succeed(ctx, "swap confirmed", form.From, form.To)
}

// CreatePool submits createAndInitializePoolIfNecessary for the pair in
// canonical order, whatever order the tokens are given in.
func (c *Controller) CreatePool(ctx context.Context, tokenA, tokenB dex.Token, fee uint32) (Result, error) {
	r, err := c.begin(ActionCreatePool)
	if err != nil {
		return Result{}, err
	}
	defer c.end()

	owner, err := c.preflight()
	if err != nil {
		return r.reject(err)
	}
	defer r.loading()()
	ctx, cancel := c.scoped(ctx)
	defer cancel()

	r.enter(StageBuilding, "preparing pool creation...")
	created, err := c.builder.CreatePool(tokenA, tokenB, fee)
	if err != nil {
		return r.fail(err)
	}
	r.result.Pool = &created
	r.record.Account = owner.Hex()
	r.detail("token0", created.Token0.Key())
	r.detail("token1", created.Token1.Key())
	r.detail("fee", dex.FeePercent(fee))
	r.detail("sqrt_price_x96", created.Params.SqrtPriceX96.String())

	if err := r.submit(ctx, func(ctx context.Context) (common.Hash, error) {
		return c.client.CreateAndInitializePoolIfNecessary(ctx, created.Params)
	}); err != nil {
		return r.fail(err)
	}
	c.engine.Invalidate()
	return r.succeed(ctx, fmt.Sprintf("pool %s/%s %s created", created.Token0, created.Token1, dex.FeePercent(fee)))
}

// AddLiquidity mints a position in pool with the given human amounts.
func (c *Controller) AddLiquidity(ctx context.Context, pool dex.Pool, tokenA, tokenB dex.Token, amountA, amountB string) (Result, error) {
	r, err := c.begin(ActionAddLiquidity)
	if err != nil {
		return Result{}, err
	}
	defer c.end()

	if _, err := c.preflight(); err != nil {
		return r.reject(err)
	}
	defer r.loading()()
	ctx, cancel := c.scoped(ctx)
	defer cancel()

	r.enter(StageBuilding, "preparing liquidity...")
	liq, err := c.builder.AddLiquidity(c.account, pool, tokenA, tokenB, amountA, amountB)
	if err != nil {
		return r.fail(err)
	}
	r.result.Liquidity = &liq
	r.record.Account = liq.Recipient.Hex()
	r.detail("pool_index", fmt.Sprint(pool.Index))
	r.detail("amount0", liq.Params.Amount0Desired.String())
	r.detail("amount1", liq.Params.Amount1Desired.String())
	for _, side := range []struct {
		token  dex.Token
		amount *big.Int
	}{{liq.Token0, liq.Params.Amount0Desired}, {liq.Token1, liq.Params.Amount1Desired}} {
		if side.token.Balance != nil && side.amount.Cmp(side.token.Balance) > 0 {
			return r.fail(clierr.New(clierr.CodeInsufficientBalance, fmt.Sprintf("amount exceeds %s balance", side.token)))
		}
	}

	if err := r.approve(ctx, liq.Recipient, c.builder.LiquidityApprovals(liq, c.client.Spenders())); err != nil {
		return r.fail(err)
	}
	if err := r.submit(ctx, func(ctx context.Context) (common.Hash, error) {
		return c.client.Mint(ctx, liq.Params)
	}); err != nil {
		return r.fail(err)
	}
	return r.succeed(ctx, "liquidity added", liq.Token0, liq.Token1)
}

// Burn removes a position's liquidity into owed tokens.
func (c *Controller) Burn(ctx context.Context, positionID *big.Int) (Result, error) {
	return c.positionAction(ctx, ActionBurn, positionID, "position burned", func(ctx context.Context, _ common.Address) (common.Hash, error) {
		return c.client.Burn(ctx, positionID)
	})
}

// Collect withdraws a position's owed tokens to the connected account.
func (c *Controller) Collect(ctx context.Context, positionID *big.Int) (Result, error) {
	return c.positionAction(ctx, ActionCollect, positionID, "fees collected", func(ctx context.Context, owner common.Address) (common.Hash, error) {
		return c.client.Collect(ctx, positionID, owner)
	})
}

func (c *Controller) positionAction(ctx context.Context, action string, positionID *big.Int, success string, send func(context.Context, common.Address) (common.Hash, error)) (Result, error) {
	r, err := c.begin(action)
	if err != nil {
		return Result{}, err
	}
	defer c.end()

	owner, err := c.preflight()
	if err != nil {
		return r.reject(err)
	}
	if positionID == nil || positionID.Sign() < 0 {
		return r.reject(clierr.New(clierr.CodeUsage, "position id must be a non-negative integer"))
	}
	defer r.loading()()
	ctx, cancel := c.scoped(ctx)
	defer cancel()

	r.enter(StageBuilding, "preparing transaction...")
	r.record.Account = owner.Hex()
	r.detail("position_id", positionID.String())
	if err := r.submit(ctx, func(ctx context.Context) (common.Hash, error) {
		return send(ctx, owner)
	}); err != nil {
		return r.fail(err)
	}
	return r.succeed(ctx, success)
}

func (c *Controller) preflight() (common.Address, error) {
	owner, err := signer.Connected(c.account)
	if err != nil {
		return common.Address{}, err
	}
	if c.client == nil {
		return common.Address{}, clierr.New(clierr.CodeNotConnected, "no chain client available")
	}
	return owner, nil
}

// run tracks one action from idle to its terminal stage.
type run struct {
	c         *Controller
	action    string
	result    Result
	record    journal.Record
	started   time.Time
	submitted bool
}

func newRun(c *Controller, action string) *run {
	actionID := journal.NewID()
	return &run{
		c:       c,
		action:  action,
		result:  Result{ID: actionID, Action: action, Stages: []Stage{StageIdle}},
		record:  journal.NewRecord(actionID, action, c.chainID),
		started: time.Now(),
	}
}

// live reports whether the run may still talk to the notifier. A closed
// controller silences flows that never broadcast anything.
func (r *run) live() bool {
	return r.submitted || !r.c.isClosed()
}

func (r *run) loading() func() {
	r.c.notifier.SetLoading(true)
	return func() { r.c.notifier.SetLoading(false) }
}

func (r *run) enter(stage Stage, message string) {
	r.result.Stages = append(r.result.Stages, stage)
	r.c.metrics.transition(r.action, stage)
	r.c.log.Debug("stage transition",
		zap.String("action_id", r.result.ID),
		zap.String("action", r.action),
		zap.String("stage", string(stage)),
	)
	if message != "" && r.live() {
		r.c.notifier.Status(stage, message)
	}
}

func (r *run) detail(key, value string) {
	r.record.Details[key] = value
}

// freshQuote quotes the current inputs and moves to building only when the
// inputs are unchanged since the quote was requested, re-quoting a bounded
// number of times otherwise.
func (r *run) freshQuote(ctx context.Context) (quote.Quote, Form, error) {
	c := r.c
	for attempt := 0; ; attempt++ {
		r.enter(StageQuoting, "fetching quote...")
		form := c.Form()
		if err := c.validate(form); err != nil {
			return quote.Quote{}, form, err
		}
		q, err := c.quoteForm(ctx, form)
		c.metrics.quote(err)
		if err != nil {
			return quote.Quote{}, form, err
		}
		r.enter(StageBuilding, "preparing transaction...")
		if c.applyQuote(form.Version, q) {
			return q, form, nil
		}
		if err := ctx.Err(); err != nil {
			return quote.Quote{}, form, err
		}
		c.metrics.stale()
		if attempt >= c.maxRequotes {
			return quote.Quote{}, form, clierr.New(clierr.CodeStale, "inputs kept changing while quoting; retry")
		}
		c.log.Debug("inputs changed since quote, re-quoting",
			zap.String("action_id", r.result.ID),
			zap.Uint64("version", form.Version),
			zap.Int("attempt", attempt+1),
		)
	}
}

// approve raises allowances that are below what the action will pull. Each
// approval is its own confirmed transaction.
func (r *run) approve(ctx context.Context, owner common.Address, approvals []builder.Approval) error {
	client := r.c.client
	for _, a := range approvals {
		allowance, err := client.Allowance(ctx, a.Token.Addr(), owner, a.Spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(a.Amount) >= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.live() {
			r.c.notifier.Status(StageBuilding, fmt.Sprintf("approving %s...", a.Token))
		}
		sendCtx := context.WithoutCancel(ctx)
		hash, err := client.Approve(sendCtx, a.Token.Addr(), a.Spender, a.Amount)
		if err != nil {
			return err
		}
		r.result.Approvals = append(r.result.Approvals, hash)
		r.record.ApprovalTxs = append(r.record.ApprovalTxs, hash.Hex())
		receipt, err := client.WaitForTransactionReceipt(sendCtx, hash)
		if err != nil {
			return err
		}
		if !receipt.Succeeded() {
			return clierr.New(clierr.CodeReverted, fmt.Sprintf("approval of %s reverted", a.Token))
		}
	}
	return nil
}

// submit broadcasts and waits. Once send is called the run no longer
// follows ctx: a broadcast transaction is followed to its receipt.
func (r *run) submit(ctx context.Context, send func(context.Context) (common.Hash, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.submitted = true
	r.enter(StageSubmitted, "submitting transaction...")
	sendCtx := context.WithoutCancel(ctx)
	hash, err := send(sendCtx)
	if err != nil {
		return err
	}
	r.result.TxHash = hash
	r.record.TxHash = hash.Hex()
	r.enter(StageConfirming, fmt.Sprintf("transaction %s submitted, waiting for confirmation...", hash.Hex()))
	receipt, err := r.c.client.WaitForTransactionReceipt(sendCtx, hash)
	if err != nil {
		return err
	}
	r.result.Receipt = &receipt
	if !receipt.Succeeded() {
		return clierr.New(clierr.CodeReverted, "transaction reverted on-chain")
	}
	return nil
}

// reject reports a precondition failure. The state machine never started,
// so nothing is journaled.
func (r *run) reject(err error) (Result, error) {
	classified := quote.Classify(err)
	r.c.log.Info("action blocked",
		zap.String("action", r.action),
		zap.String("reason", clierr.UserMessage(classified)),
	)
	r.c.notifier.Failure(classified)
	return r.result, classified
}

func (r *run) fail(err error) (Result, error) {
	classified := quote.Classify(err)
	r.enter(StageFailed, "")
	fields := []zap.Field{
		zap.String("action_id", r.result.ID),
		zap.String("action", r.action),
		zap.Error(err),
	}
	if revert, ok := chain.AsRevert(err); ok {
		fields = append(fields, zap.String("revert_reason", revert.Reason))
	}
	r.c.log.Warn("action failed", fields...)
	if r.live() {
		r.c.notifier.Failure(classified)
	}
	r.c.metrics.outcome(r.action, classified, time.Since(r.started))
	r.finish(journal.StatusFailed, classified)
	return r.result, classified
}

func (r *run) succeed(ctx context.Context, message string, tokens ...dex.Token) (Result, error) {
	r.enter(StageSucceeded, "")
	r.c.notifier.Success(message)
	if len(tokens) > 0 {
		balances, err := r.c.RefreshBalances(context.WithoutCancel(ctx), tokens...)
		if err != nil {
			r.c.log.Warn("balance refresh failed", zap.String("action_id", r.result.ID), zap.Error(err))
		}
		r.result.Balances = balances
	}
	r.c.resetInputs()
	if r.c.onClose != nil {
		r.c.onClose()
	}
	r.c.metrics.outcome(r.action, nil, time.Since(r.started))
	r.finish(journal.StatusSucceeded, nil)
	r.c.log.Info("action succeeded",
		zap.String("action_id", r.result.ID),
		zap.String("action", r.action),
		zap.String("tx_hash", r.result.TxHash.Hex()),
	)
	return r.result, nil
}

func (r *run) finish(status journal.Status, err error) {
	if r.c.journal == nil {
		return
	}
	r.record.Status = status
	r.record.Stages = make([]string, 0, len(r.result.Stages))
	for _, s := range r.result.Stages {
		r.record.Stages = append(r.record.Stages, string(s))
	}
	if err != nil {
		if typed, ok := clierr.As(err); ok {
			r.record.ErrorType = clierr.TypeOf(typed.Code)
		}
		r.record.Error = clierr.UserMessage(err)
	}
	r.record.Touch()
	if err := r.c.journal.Save(r.record); err != nil {
		r.c.log.Warn("journal write failed", zap.String("action_id", r.record.ID), zap.Error(err))
	}
}
