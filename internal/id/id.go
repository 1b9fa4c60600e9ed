package id

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155AssetPattern = regexp.MustCompile(`^eip155:[0-9]+/erc20:0x[0-9a-fA-F]{40}$`)
)

type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

type Asset struct {
	ChainID  string
	AssetID  string
	Address  string
	Symbol   string
	Name     string
	Decimals int
}

// Known reports whether the asset resolved against the token registry, which
// means Symbol and Decimals are trustworthy without a chain read.
func (a Asset) Known() bool {
	return strings.TrimSpace(a.Symbol) != ""
}

type Token struct {
	Symbol   string
	Name     string
	Address  string
	Decimals int
}

var chainBySlug = map[string]Chain{
	"ethereum": {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"mainnet":  {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"sepolia":  {Name: "Sepolia", Slug: "sepolia", CAIP2: "eip155:11155111", EVMChainID: 11155111},
	"local":    {Name: "Local", Slug: "local", CAIP2: "eip155:31337", EVMChainID: 31337},
	"anvil":    {Name: "Local", Slug: "local", CAIP2: "eip155:31337", EVMChainID: 31337},
}

var chainByID = map[int64]Chain{
	1:        chainBySlug["ethereum"],
	11155111: chainBySlug["sepolia"],
	31337:    chainBySlug["local"],
}

// Bootstrap token list for the DEX deployment on Sepolia.
var tokenRegistry = map[string][]Token{
	"eip155:11155111": {
		{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14", Decimals: 18},
		{Symbol: "AWY", Name: "WYToken A", Address: "0xc5C45CAe44dA4eD5F767d38ADBa00C7B56125fDa", Decimals: 18},
		{Symbol: "BWY", Name: "WYToken B", Address: "0x8F8d4529C06b9f8A8EA2049de9fcE5FBE99453CC", Decimals: 18},
		{Symbol: "CWY", Name: "WYToken C", Address: "0x330BdEE0cD752C73Df7B6EeE46fE9b5aCd4956F3", Decimals: 18},
		{Symbol: "DWY", Name: "WYToken D", Address: "0x28382072E60e84dfc208687Ebc4b5C1127A1652A", Decimals: 18},
		{Symbol: "EWY", Name: "WYToken E", Address: "0xF95395dCC008E5f9958D3482706F5fD83CF5e5Ea", Decimals: 18},
		{Symbol: "FWY", Name: "WYToken F", Address: "0xa627E7092412D7CFe284B4c09F09eD1547eB639C", Decimals: 18},
		{Symbol: "GWY", Name: "WYToken G", Address: "0x5fC1d5b191aF9C0b9f46037fb9A98b84caec26A8", Decimals: 18},
		{Symbol: "HWY", Name: "WYToken H", Address: "0xCCeFC1495e7454558ee8F018bC7A87b7b8a68B6e", Decimals: 18},
		{Symbol: "IWY", Name: "WYToken I", Address: "0x821c270Fa1AAd2f4594DDE747Ab6C5e2EabCF9af", Decimals: 18},
		{Symbol: "JWY", Name: "WYToken J", Address: "0x8c30Bb23D47AD913CFe0fa38fDF68a325C459714", Decimals: 18},
	},
	"eip155:1": {
		{Symbol: "USDC", Name: "USD Coin", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
		{Symbol: "DAI", Name: "Dai Stablecoin", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "WETH", Name: "Wrapped Ether", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	},
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := chainByID[id]; ok {
			return known, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: norm, EVMChainID: id}, nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[id]; ok {
			return chain, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id}, nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// ParseAsset resolves a symbol, address or CAIP-19 id on chain. Addresses that
// are not in the registry come back with an empty Symbol; callers read the
// metadata from chain.
func ParseAsset(input string, chain Chain) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "asset is required")
	}

	if strings.Contains(raw, "/") {
		if !eip155AssetPattern.MatchString(raw) {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		parts := strings.SplitN(raw, "/", 2)
		if parts[0] != chain.CAIP2 {
			return Asset{}, clierr.New(clierr.CodeUsage, "asset chain does not match --chain")
		}
		raw = strings.TrimPrefix(parts[1], "erc20:")
	}

	if evmAddressPattern.MatchString(raw) {
		addr := strings.ToLower(raw)
		token, _ := findTokenByAddress(chain.CAIP2, addr)
		return assetFromToken(chain, addr, token), nil
	}

	matches := findTokensBySymbol(chain.CAIP2, raw)
	if len(matches) == 0 {
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, chain.CAIP2))
	}
	if len(matches) > 1 {
		addresses := make([]string, 0, len(matches))
		for _, m := range matches {
			addresses = append(addresses, m.Address)
		}
		sort.Strings(addresses)
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s is ambiguous on chain %s, use address or CAIP-19 (%s)", input, chain.CAIP2, strings.Join(addresses, ", ")))
	}
	return assetFromToken(chain, matches[0].Address, matches[0]), nil
}

// Tokens lists the registry tokens for chain in symbol order.
func Tokens(chain Chain) []Asset {
	list := tokenRegistry[chain.CAIP2]
	out := make([]Asset, 0, len(list))
	for _, t := range list {
		out = append(out, assetFromToken(chain, strings.ToLower(t.Address), t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func assetFromToken(chain Chain, addr string, t Token) Asset {
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  fmt.Sprintf("%s/erc20:%s", chain.CAIP2, strings.ToLower(addr)),
		Address:  strings.ToLower(addr),
		Symbol:   strings.ToUpper(t.Symbol),
		Name:     t.Name,
		Decimals: t.Decimals,
	}
}

func findTokenByAddress(chainID, address string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Address, address) {
			return t, true
		}
	}
	return Token{}, false
}

func findTokensBySymbol(chainID, symbol string) []Token {
	matches := []Token{}
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, t)
		}
	}
	return matches
}

func LookupByAddress(chainID, address string) (Token, bool) {
	return findTokenByAddress(chainID, address)
}
