package app

import (
	"context"
	"time"

	"github.com/ggonzalez94/dex-cli/internal/cache"
	"github.com/ggonzalez94/dex-cli/internal/subgraph"
	"github.com/spf13/cobra"
)

const (
	exploreTokensTTL       = 60 * time.Second
	explorePoolsTTL        = 60 * time.Second
	exploreTransactionsTTL = 15 * time.Second
)

func (s *runtimeState) newExploreCommand() *cobra.Command {
	root := &cobra.Command{Use: "explore", Short: "Browse indexed tokens, pools and transactions"}
	root.AddCommand(newExploreListing(s, "tokens", "List indexed tokens", exploreTokensTTL, (*subgraph.Client).Tokens))
	root.AddCommand(newExploreListing(s, "pools", "List indexed pools", explorePoolsTTL, (*subgraph.Client).Pools))
	root.AddCommand(newExploreListing(s, "transactions", "List recent swaps, newest first", exploreTransactionsTTL, (*subgraph.Client).Swaps))
	return root
}

// newExploreListing builds one paged, cached indexer listing command.
func newExploreListing[T any](s *runtimeState, name, short string, ttl time.Duration, fetch func(*subgraph.Client, context.Context, subgraph.Page) ([]T, error)) *cobra.Command {
	var page subgraph.Page
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.indexerClient()
			if err != nil {
				return err
			}
			ctx, cancel := s.readContext()
			defer cancel()

			key := cache.Key("explore_"+name, map[string]any{
				"endpoint": client.Endpoint(),
				"first":    page.First,
				"skip":     page.Skip,
			})
			items, status, err := cache.Fetch(ctx, s.cache, s.cachePolicy(), key, ttl, func(ctx context.Context) ([]T, error) {
				return fetch(client, ctx, page)
			})
			if err != nil {
				return err
			}
			var warnings []string
			if status.Warning != "" {
				warnings = append(warnings, status.Warning)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, warnings, cacheMeta(status), false)
		},
	}
	cmd.Flags().IntVar(&page.First, "limit", 20, "Maximum number of items")
	cmd.Flags().IntVar(&page.Skip, "offset", 0, "Number of items to skip")
	return cmd
}
