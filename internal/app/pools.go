package app

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"github.com/ggonzalez94/dex-cli/internal/model"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newPoolsCommand() *cobra.Command {
	root := &cobra.Command{Use: "pools", Short: "Pool discovery and creation"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every pool known to the pool manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.readContext()
			defer cancel()
			client, err := s.chainClient(ctx)
			if err != nil {
				return err
			}
			pools, err := s.quoteEngine().Refresh(ctx, client)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.poolInfos(pools), nil, cacheMetaBypass(), false)
		},
	}

	var findA, findB string
	var findFee uint32
	find := &cobra.Command{
		Use:   "find",
		Short: "Find the pools for a token pair across fee tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.readContext()
			defer cancel()
			tokenA, tokenB, cacheStatus, err := s.resolvePair(ctx, findA, findB)
			if err != nil {
				return err
			}
			if findFee != 0 {
				if err := dex.ValidateFee(findFee); err != nil {
					return err
				}
			}
			client, err := s.chainClient(ctx)
			if err != nil {
				return err
			}
			pools, err := s.quoteEngine().Route(ctx, client, tokenA, tokenB)
			if err != nil {
				return err
			}
			if findFee != 0 {
				filtered := []dex.Pool{}
				if p, ok := dex.FindPool(pools, tokenA, tokenB, findFee); ok {
					filtered = append(filtered, p)
				}
				pools = filtered
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.poolInfos(pools), nil, cacheStatus, false)
		},
	}
	find.Flags().StringVar(&findA, "token-a", "", "First token (symbol, address or CAIP-19 id)")
	find.Flags().StringVar(&findB, "token-b", "", "Second token (symbol, address or CAIP-19 id)")
	find.Flags().Uint32Var(&findFee, "fee", 0, "Only return the pool with this fee tier (500|3000|10000)")

	var createA, createB string
	var createFee uint32
	create := &cobra.Command{
		Use:   "create",
		Short: "Create and initialize a pool for a token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dex.ValidateFee(createFee); err != nil {
				return err
			}
			ctx, stop := actionContext()
			defer stop()
			tokenA, tokenB, cacheStatus, err := s.resolvePair(ctx, createA, createB)
			if err != nil {
				return err
			}
			ctrl, err := s.controller(ctx)
			if err != nil {
				return err
			}
			res, err := ctrl.CreatePool(ctx, tokenA, tokenB, createFee)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.actionResult(res), nil, cacheStatus, false)
		},
	}
	create.Flags().StringVar(&createA, "token-a", "", "First token (symbol, address or CAIP-19 id)")
	create.Flags().StringVar(&createB, "token-b", "", "Second token (symbol, address or CAIP-19 id)")
	create.Flags().Uint32Var(&createFee, "fee", 3000, "Fee tier in hundredths of a bip (500|3000|10000)")

	root.AddCommand(list)
	root.AddCommand(find)
	root.AddCommand(create)
	return root
}

func (s *runtimeState) poolInfos(pools []dex.Pool) []model.PoolInfo {
	out := make([]model.PoolInfo, 0, len(pools))
	for _, p := range pools {
		out = append(out, model.PoolInfo{
			Address:      hexLower(p.Address),
			Token0:       hexLower(p.Token0),
			Token1:       hexLower(p.Token1),
			Token0Symbol: s.registrySymbol(p.Token0),
			Token1Symbol: s.registrySymbol(p.Token1),
			Index:        p.Index,
			Fee:          p.Fee,
			FeePercent:   dex.FeePercent(p.Fee),
			FeeProtocol:  p.FeeProtocol,
			TickLower:    p.TickLower,
			TickUpper:    p.TickUpper,
			Tick:         p.Tick,
			SqrtPriceX96: bigString(p.SqrtPriceX96),
			Liquidity:    bigString(p.Liquidity),
		})
	}
	return out
}

func (s *runtimeState) registrySymbol(addr common.Address) string {
	if t, ok := id.LookupByAddress(s.chain.CAIP2, hexLower(addr)); ok {
		return strings.ToUpper(t.Symbol)
	}
	return ""
}

func hexLower(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return clierr.New(clierr.CodeUsage, "--"+name+" is required")
	}
	return nil
}
