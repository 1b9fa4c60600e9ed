package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/lifecycle"
	"github.com/ggonzalez94/dex-cli/internal/model"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newPositionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "positions", Short: "Liquidity positions"}

	var owner string
	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List liquidity positions of an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.readContext()
			defer cancel()
			var filter common.Address
			if !all {
				addr, err := s.balanceOwner(owner)
				if err != nil {
					return err
				}
				filter = addr
			}
			client, err := s.chainClient(ctx)
			if err != nil {
				return err
			}
			positions, err := client.GetAllPositions(ctx)
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "list positions", err)
			}
			data := make([]model.PositionInfo, 0, len(positions))
			for _, p := range positions {
				if !all && p.Owner != filter {
					continue
				}
				data = append(data, positionInfo(p))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), false)
		},
	}
	list.Flags().StringVar(&owner, "owner", "", "Owner address (defaults to the signing key)")
	list.Flags().BoolVar(&all, "all", false, "List positions of every owner")

	var tokenA, tokenB, amountA, amountB string
	var fee uint32
	var index int64
	add := &cobra.Command{
		Use:   "add",
		Short: "Add liquidity to an existing pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("amount-a", amountA); err != nil {
				return err
			}
			if err := requireFlag("amount-b", amountB); err != nil {
				return err
			}
			if index < 0 {
				if err := dex.ValidateFee(fee); err != nil {
					return err
				}
			}
			ctx, stop := actionContext()
			defer stop()
			a, b, cacheStatus, err := s.resolvePair(ctx, tokenA, tokenB)
			if err != nil {
				return err
			}
			ctrl, err := s.controller(ctx)
			if err != nil {
				return err
			}
			pools, err := s.quoteEngine().Route(ctx, s.client, a, b)
			if err != nil {
				return err
			}
			pool, err := pickPool(pools, a, b, fee, index)
			if err != nil {
				return err
			}
			res, err := ctrl.AddLiquidity(ctx, pool, a, b, amountA, amountB)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.actionResult(res), nil, cacheStatus, false)
		},
	}
	add.Flags().StringVar(&tokenA, "token-a", "", "First token (symbol, address or CAIP-19 id)")
	add.Flags().StringVar(&tokenB, "token-b", "", "Second token (symbol, address or CAIP-19 id)")
	add.Flags().StringVar(&amountA, "amount-a", "", "Decimal amount of the first token")
	add.Flags().StringVar(&amountB, "amount-b", "", "Decimal amount of the second token")
	add.Flags().Uint32Var(&fee, "fee", 3000, "Fee tier of the target pool (500|3000|10000)")
	add.Flags().Int64Var(&index, "index", -1, "Target pool index (overrides --fee)")

	root.AddCommand(list)
	root.AddCommand(add)
	root.AddCommand(s.newPositionActionCommand("burn", "Burn a position", func(ctrl *lifecycle.Controller) positionAction { return ctrl.Burn }))
	root.AddCommand(s.newPositionActionCommand("collect", "Collect owed tokens of a position", func(ctrl *lifecycle.Controller) positionAction { return ctrl.Collect }))
	return root
}

type positionAction func(ctx context.Context, positionID *big.Int) (lifecycle.Result, error)

func (s *runtimeState) newPositionActionCommand(name, short string, pick func(*lifecycle.Controller) positionAction) *cobra.Command {
	var rawID string
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			positionID, err := parsePositionID(rawID)
			if err != nil {
				return err
			}
			ctx, stop := actionContext()
			defer stop()
			ctrl, err := s.controller(ctx)
			if err != nil {
				return err
			}
			res, err := pick(ctrl)(ctx, positionID)
			if err != nil {
				return err
			}
			out := s.actionResult(res)
			out.Details["position_id"] = positionID.String()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil, cacheMetaBypass(), false)
		},
	}
	cmd.Flags().StringVar(&rawID, "id", "", "Position token id")
	return cmd
}

// pickPool selects the target pool by index when one is given, otherwise by
// fee tier.
func pickPool(pools []dex.Pool, a, b dex.Token, fee uint32, index int64) (dex.Pool, error) {
	if len(pools) == 0 {
		return dex.Pool{}, clierr.New(clierr.CodeNoRoute, fmt.Sprintf("no pool for %s/%s", a, b))
	}
	if index >= 0 {
		for _, p := range pools {
			if int64(p.Index) == index {
				return p, nil
			}
		}
		return dex.Pool{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("pool %d does not trade %s/%s", index, a, b))
	}
	if p, ok := dex.FindPool(pools, a, b, fee); ok {
		return p, nil
	}
	return dex.Pool{}, clierr.New(clierr.CodeNoRoute, fmt.Sprintf("no %s pool for %s/%s", dex.FeePercent(fee), a, b))
}

func positionInfo(p chain.Position) model.PositionInfo {
	return model.PositionInfo{
		ID:          bigString(p.ID),
		Owner:       hexLower(p.Owner),
		Token0:      hexLower(p.Token0),
		Token1:      hexLower(p.Token1),
		Index:       p.Index,
		Fee:         p.Fee,
		Liquidity:   bigString(p.Liquidity),
		TickLower:   p.TickLower,
		TickUpper:   p.TickUpper,
		TokensOwed0: bigString(p.TokensOwed0),
		TokensOwed1: bigString(p.TokensOwed1),
	}
}
