package app

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/journal"
	"github.com/ggonzalez94/dex-cli/internal/lifecycle"
	"github.com/ggonzalez94/dex-cli/internal/model"
	"github.com/spf13/cobra"
)

// actionContext is cancelled on interrupt. Receipt waiting is bounded by the
// chain client, so there is no extra deadline here; an interrupt only
// abandons flows that have not broadcast yet.
func actionContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect the local journal of swap and liquidity actions"}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent actions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status = strings.ToLower(strings.TrimSpace(status))
			switch journal.Status(status) {
			case "", journal.StatusSucceeded, journal.StatusFailed:
			default:
				return clierr.New(clierr.CodeUsage, "--status must be succeeded or failed")
			}
			records, err := s.journal.List(status, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records, nil, cacheMetaBypass(), false)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (succeeded|failed)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of actions")

	show := &cobra.Command{
		Use:   "show <action-id>",
		Short: "Show one action record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := s.journal.Get(strings.TrimSpace(args[0]))
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeInternal, "read action", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), record, nil, cacheMetaBypass(), false)
		},
	}

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}

// actionResult flattens a controller result into the envelope payload.
func (s *runtimeState) actionResult(res lifecycle.Result) model.ActionResult {
	out := model.ActionResult{
		ActionID: res.ID,
		Action:   res.Action,
		Status:   string(res.Final()),
		Stages:   make([]string, 0, len(res.Stages)),
		Details:  map[string]string{},
	}
	for _, stage := range res.Stages {
		out.Stages = append(out.Stages, string(stage))
	}
	if res.TxHash != (common.Hash{}) {
		out.TxHash = res.TxHash.Hex()
	}
	for _, h := range res.Approvals {
		out.ApprovalTxs = append(out.ApprovalTxs, h.Hex())
	}
	if res.Receipt != nil {
		out.BlockNumber = res.Receipt.BlockNumber
		out.GasUsed = res.Receipt.GasUsed
	}

	var involved []dex.Token
	var account string
	switch {
	case res.Swap != nil:
		sw := res.Swap
		q := sw.Quote
		account = sw.Recipient.Hex()
		involved = []dex.Token{q.TokenIn, q.TokenOut}
		out.Details["token_in"] = q.TokenIn.Key()
		out.Details["token_out"] = q.TokenOut.Key()
		out.Details["amount_in"] = bigString(q.AmountIn)
		out.Details["amount_out"] = bigString(q.AmountOut)
		out.Details["trade_type"] = tradeType(q.ExactOutput)
		out.Details["route"] = fmt.Sprint(q.Route)
		out.Details["deadline"] = sw.Deadline.UTC().Format(time.RFC3339)
		if q.ExactOutput {
			out.Details["amount_in_maximum"] = bigString(sw.Bound())
		} else {
			out.Details["amount_out_minimum"] = bigString(sw.Bound())
		}
	case res.Pool != nil:
		p := res.Pool
		out.Details["token0"] = p.Token0.Key()
		out.Details["token1"] = p.Token1.Key()
		out.Details["fee"] = bigString(p.Params.Fee)
		out.Details["tick_lower"] = bigString(p.Params.TickLower)
		out.Details["tick_upper"] = bigString(p.Params.TickUpper)
		out.Details["sqrt_price_x96"] = bigString(p.Params.SqrtPriceX96)
	case res.Liquidity != nil:
		l := res.Liquidity
		account = l.Recipient.Hex()
		involved = []dex.Token{l.Token0, l.Token1}
		out.Details["token0"] = l.Token0.Key()
		out.Details["token1"] = l.Token1.Key()
		out.Details["pool_index"] = fmt.Sprint(l.Pool.Index)
		out.Details["amount0_desired"] = bigString(l.Params.Amount0Desired)
		out.Details["amount1_desired"] = bigString(l.Params.Amount1Desired)
		out.Details["deadline"] = l.Deadline.UTC().Format(time.RFC3339)
	}
	if len(involved) > 0 && len(res.Balances) > 0 {
		out.Balances = tokenBalances(account, involved, res.Balances)
	}
	return out
}

func tradeType(exactOutput bool) string {
	if exactOutput {
		return "exact_output"
	}
	return "exact_input"
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parsePositionID(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, clierr.New(clierr.CodeUsage, "--id is required")
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid position id %q", raw))
	}
	return v, nil
}
