package app

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"github.com/ggonzalez94/dex-cli/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	nativeSymbol   = "ETH"
	nativeDecimals = 18
	balanceWorkers = 4
)

func (s *runtimeState) newTokensCommand() *cobra.Command {
	root := &cobra.Command{Use: "tokens", Short: "Token registry and balances"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registry tokens for the chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assets := id.Tokens(s.chain)
			data := make([]model.TokenInfo, 0, len(assets))
			for _, a := range assets {
				data = append(data, model.TokenInfo{
					Address:  a.Address,
					Symbol:   a.Symbol,
					Name:     a.Name,
					Decimals: a.Decimals,
					Known:    true,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), false)
		},
	}

	var tokensArg, accountArg string
	var native bool
	balance := &cobra.Command{
		Use:   "balance",
		Short: "Read token balances of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := splitCSV(tokensArg)
			if len(inputs) == 0 && !native {
				return clierr.New(clierr.CodeUsage, "--tokens or --native is required")
			}
			ctx, cancel := s.readContext()
			defer cancel()

			owner, err := s.balanceOwner(accountArg)
			if err != nil {
				return err
			}
			client, err := s.chainClient(ctx)
			if err != nil {
				return err
			}

			tokens := make([]dex.Token, 0, len(inputs))
			cacheStatus := cacheMetaBypass()
			for _, input := range inputs {
				token, status, err := s.resolveToken(ctx, input)
				if err != nil {
					return err
				}
				if status.Status != "bypass" {
					cacheStatus = cacheMeta(status)
				}
				tokens = append(tokens, token)
			}

			rows := make([]model.TokenBalance, len(tokens))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(balanceWorkers)
			for i, token := range tokens {
				g.Go(func() error {
					rows[i] = model.TokenBalance{Token: tokenInfo(token), Account: owner.Hex()}
					v, err := client.BalanceOf(gctx, token.Addr(), owner)
					if err != nil {
						s.log.Warn("balance read failed", zap.String("token", token.Key()), zap.Error(err))
						rows[i].Error = err.Error()
						return nil
					}
					rows[i].Balance = amountInfo(v, token.Decimals)
					return nil
				})
			}
			_ = g.Wait()

			if native {
				row := model.TokenBalance{
					Token:   model.TokenInfo{Symbol: nativeSymbol, Name: "Ether", Decimals: nativeDecimals, Known: true},
					Account: owner.Hex(),
				}
				if v, err := client.NativeBalance(ctx, owner); err != nil {
					row.Error = err.Error()
				} else {
					row.Balance = amountInfo(v, nativeDecimals)
				}
				rows = append(rows, row)
			}

			var warnings []string
			for _, row := range rows {
				if row.Error != "" {
					label := row.Token.Symbol
					if label == "" {
						label = row.Token.Address
					}
					warnings = append(warnings, fmt.Sprintf("balance of %s unavailable", label))
				}
			}
			partial := len(warnings) > 0
			if partial && s.settings.Strict {
				s.lastWarnings = warnings
				s.lastPartial = true
				return clierr.New(clierr.CodePartialStrict, "some balances could not be read (--strict)")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, warnings, cacheStatus, partial)
		},
	}
	balance.Flags().StringVar(&tokensArg, "tokens", "", "Tokens to read (comma-separated symbols, addresses or CAIP-19 ids)")
	balance.Flags().StringVar(&accountArg, "account", "", "Account address (defaults to the signing key)")
	balance.Flags().BoolVar(&native, "native", false, "Include the native ETH balance")

	root.AddCommand(list)
	root.AddCommand(balance)
	return root
}

func (s *runtimeState) balanceOwner(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		addr, err := s.account()
		if err != nil {
			return common.Address{}, err
		}
		return common.HexToAddress(addr), nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, clierr.New(clierr.CodeUsage, "--account must be a 0x-prefixed 20-byte hex address")
	}
	return common.HexToAddress(input), nil
}

func amountInfo(v *big.Int, decimals int) model.AmountInfo {
	if v == nil {
		v = new(big.Int)
	}
	return model.AmountInfo{
		AmountBaseUnits: v.String(),
		AmountDecimal:   id.FormatUnits(v, decimals),
		Decimals:        decimals,
	}
}

// tokenBalances renders the post-action balances the controller refreshed.
func tokenBalances(account string, tokens []dex.Token, balances map[string]*big.Int) []model.TokenBalance {
	out := make([]model.TokenBalance, 0, len(tokens))
	for _, t := range tokens {
		v, ok := balances[t.Key()]
		if !ok {
			continue
		}
		out = append(out, model.TokenBalance{Token: tokenInfo(t), Account: account, Balance: amountInfo(v, t.Decimals)})
	}
	return out
}
