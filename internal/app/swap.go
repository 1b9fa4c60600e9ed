package app

import (
	"context"
	"time"

	"github.com/ggonzalez94/dex-cli/internal/builder"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"github.com/ggonzalez94/dex-cli/internal/lifecycle"
	"github.com/ggonzalez94/dex-cli/internal/model"
	"github.com/ggonzalez94/dex-cli/internal/quote"
	"github.com/spf13/cobra"
)

type swapArgs struct {
	from        string
	to          string
	amount      string
	amountBase  string
	exactOutput bool
}

func (a *swapArgs) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.from, "from", "", "Input token (symbol, address or CAIP-19 id)")
	cmd.Flags().StringVar(&a.to, "to", "", "Output token (symbol, address or CAIP-19 id)")
	cmd.Flags().StringVar(&a.amount, "amount", "", "Decimal amount of the input token, or of the output token with --exact-output")
	cmd.Flags().StringVar(&a.amountBase, "amount-base", "", "Same amount in base units (exclusive with --amount)")
	cmd.Flags().BoolVar(&a.exactOutput, "exact-output", false, "Treat --amount as the exact output")
}

func (a swapArgs) validate() error {
	if err := requireFlag("from", a.from); err != nil {
		return err
	}
	return requireFlag("to", a.to)
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	root := &cobra.Command{Use: "swap", Short: "Quote and execute swaps"}

	var quoteArgs swapArgs
	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap and show the slippage-adjusted bound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := quoteArgs.validate(); err != nil {
				return err
			}
			ctx, cancel := s.readContext()
			defer cancel()
			ctrl, cacheStatus, err := s.fillSwapForm(ctx, quoteArgs)
			if err != nil {
				return err
			}
			q, err := ctrl.RequestQuote(ctx)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.swapQuote(q), nil, cacheStatus, false)
		},
	}
	quoteArgs.bind(quoteCmd)

	var execArgs swapArgs
	execCmd := &cobra.Command{
		Use:   "exec",
		Short: "Quote, approve, submit and confirm a swap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := execArgs.validate(); err != nil {
				return err
			}
			ctx, stop := actionContext()
			defer stop()
			ctrl, cacheStatus, err := s.fillSwapForm(ctx, execArgs)
			if err != nil {
				return err
			}
			form := ctrl.Form()
			if _, err := ctrl.RefreshBalances(ctx, form.From, form.To); err != nil {
				return err
			}
			res, err := ctrl.Swap(ctx)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.actionResult(res), nil, cacheStatus, false)
		},
	}
	execArgs.bind(execCmd)

	root.AddCommand(quoteCmd)
	root.AddCommand(execCmd)
	return root
}

// fillSwapForm resolves both tokens and loads them into the controller's
// form the way an interactive client would, field by field.
func (s *runtimeState) fillSwapForm(ctx context.Context, a swapArgs) (*lifecycle.Controller, model.CacheStatus, error) {
	from, to, cacheStatus, err := s.resolvePair(ctx, a.from, a.to)
	if err != nil {
		return nil, cacheStatus, err
	}
	denominated := from
	if a.exactOutput {
		denominated = to
	}
	_, amount, err := id.NormalizeAmount(a.amountBase, a.amount, denominated.Decimals)
	if err != nil {
		return nil, cacheStatus, err
	}
	ctrl, err := s.controller(ctx)
	if err != nil {
		return nil, cacheStatus, err
	}
	ctrl.SetTokens(from, to)
	ctrl.SetExactOutput(a.exactOutput)
	ctrl.SetAmount(amount)
	return ctrl, cacheStatus, nil
}

func (s *runtimeState) swapQuote(q quote.Quote) model.SwapQuote {
	bps := s.settings.SlippageBps
	out := model.SwapQuote{
		ChainID:       s.chain.CAIP2,
		TradeType:     tradeType(q.ExactOutput),
		TokenIn:       tokenInfo(q.TokenIn),
		TokenOut:      tokenInfo(q.TokenOut),
		AmountIn:      amountInfo(q.AmountIn, q.TokenIn.Decimals),
		AmountOut:     amountInfo(q.AmountOut, q.TokenOut.Decimals),
		Display:       q.Display(),
		Route:         q.Route,
		SlippageBps:   bps,
		PriceLimitX96: bigString(q.PriceLimit),
		QuotedAt:      q.QuotedAt.UTC().Format(time.RFC3339),
	}
	if q.ExactOutput {
		out.BoundKind = "amount_in_maximum"
		out.AmountBound = amountInfo(builder.MaximumIn(q.AmountIn, bps), q.TokenIn.Decimals)
	} else {
		out.BoundKind = "amount_out_minimum"
		out.AmountBound = amountInfo(builder.MinimumOut(q.AmountOut, bps), q.TokenOut.Decimals)
	}
	return out
}
