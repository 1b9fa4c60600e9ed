// Package subgraph reads token, pool and swap listings from the indexing
// service over GraphQL.
package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/httpx"
	"github.com/ggonzalez94/dex-cli/internal/registry"
)

const MaxPageSize = 1000

const tokensQuery = `query GetTokens($first: Int, $skip: Int) {
  tokens_collection(first: $first, skip: $skip) {
    id
    decimals
    name
    symbol
    totalLiquidityUSD
    totalSupply
    totalVolumeUSD
  }
}`

const poolsQuery = `query GetPools($first: Int, $skip: Int) {
  pools_collection(first: $first, skip: $skip) {
    id
    fee
    token0 { id symbol totalSupply }
    token1 { id symbol totalSupply }
  }
}`

const swapsQuery = `query GetSwaps($first: Int, $skip: Int) {
  swaps(first: $first, skip: $skip, orderBy: timestamp, orderDirection: desc) {
    id
    timestamp
    sender
    recipient
    amount0
    amount1
    token0 { id symbol }
    token1 { id symbol }
    transaction { id }
  }
}`

// Token is an indexed token. Numeric fields keep the indexer's decimal
// strings.
type Token struct {
	ID                string `json:"id"`
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	Decimals          string `json:"decimals"`
	TotalSupply       string `json:"totalSupply"`
	TotalLiquidityUSD string `json:"totalLiquidityUSD"`
	TotalVolumeUSD    string `json:"totalVolumeUSD"`
}

type TokenRef struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	TotalSupply string `json:"totalSupply,omitempty"`
}

type Pool struct {
	ID     string   `json:"id"`
	Fee    string   `json:"fee"`
	Token0 TokenRef `json:"token0"`
	Token1 TokenRef `json:"token1"`
}

type Swap struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Sender      string   `json:"sender"`
	Recipient   string   `json:"recipient"`
	Amount0     string   `json:"amount0"`
	Amount1     string   `json:"amount1"`
	Token0      TokenRef `json:"token0"`
	Token1      TokenRef `json:"token1"`
	Transaction struct {
		ID string `json:"id"`
	} `json:"transaction"`
}

// Page selects a window of a listing.
type Page struct {
	First int
	Skip  int
}

func (p Page) vars() (map[string]any, error) {
	if p.First <= 0 || p.First > MaxPageSize {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("--limit must be between 1 and %d", MaxPageSize))
	}
	if p.Skip < 0 {
		return nil, clierr.New(clierr.CodeUsage, "--offset must be >= 0")
	}
	return map[string]any{"first": p.First, "skip": p.Skip}, nil
}

type Client struct {
	http     *httpx.Client
	endpoint string
	apiKey   string
}

func New(httpClient *httpx.Client, endpoint, apiKey string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = registry.DefaultSubgraphURL
	}
	if !registry.IsAllowedSubgraphURL(endpoint) {
		return nil, clierr.New(clierr.CodeUsage, "subgraph url must use https (http is allowed only for localhost)")
	}
	return &Client{http: httpClient, endpoint: endpoint, apiKey: strings.TrimSpace(apiKey)}, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) Tokens(ctx context.Context, page Page) ([]Token, error) {
	var data struct {
		Tokens []Token `json:"tokens_collection"`
	}
	if err := c.query(ctx, "tokens", tokensQuery, page, &data); err != nil {
		return nil, err
	}
	return nonNil(data.Tokens), nil
}

func (c *Client) Pools(ctx context.Context, page Page) ([]Pool, error) {
	var data struct {
		Pools []Pool `json:"pools_collection"`
	}
	if err := c.query(ctx, "pools", poolsQuery, page, &data); err != nil {
		return nil, err
	}
	return nonNil(data.Pools), nil
}

func (c *Client) Swaps(ctx context.Context, page Page) ([]Swap, error) {
	var data struct {
		Swaps []Swap `json:"swaps"`
	}
	if err := c.query(ctx, "swaps", swapsQuery, page, &data); err != nil {
		return nil, err
	}
	return nonNil(data.Swaps), nil
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, name, query string, page Page, out any) error {
	vars, err := page.vars()
	if err != nil {
		return err
	}
	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.apiKey}
	}
	var resp gqlResponse
	if _, err := c.http.PostJSON(ctx, c.endpoint, map[string]any{"query": query, "variables": vars}, headers, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("subgraph %s query error: %s", name, resp.Errors[0].Message))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("subgraph %s query returned no data", name))
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode subgraph %s", name), err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
