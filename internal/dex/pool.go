package dex

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Pool mirrors the PoolManager's pool info tuple.
type Pool struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	Index        uint32
	Fee          uint32
	FeeProtocol  uint8
	TickLower    int32
	TickUpper    int32
	Tick         int32
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

func (p Pool) Key0() string { return strings.ToLower(p.Token0.Hex()) }
func (p Pool) Key1() string { return strings.ToLower(p.Token1.Hex()) }

// Matches reports whether the pool trades the canonical pair (token0, token1).
func (p Pool) Matches(token0, token1 Token) bool {
	return p.Key0() == token0.Key() && p.Key1() == token1.Key()
}

// FindPools returns every pool for the pair across fee tiers and indexes,
// ordered by fee then index. It never returns nil.
func FindPools(all []Pool, a, b Token) []Pool {
	out := []Pool{}
	token0, token1, err := SortTokens(a, b)
	if err != nil {
		return out
	}
	for _, p := range all {
		if p.Matches(token0, token1) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Fee != out[j].Fee {
			return out[i].Fee < out[j].Fee
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// FindPool picks the pool with the given fee tier, if any.
func FindPool(all []Pool, a, b Token, fee uint32) (Pool, bool) {
	for _, p := range FindPools(all, a, b) {
		if p.Fee == fee {
			return p, true
		}
	}
	return Pool{}, false
}

// RouteIndexes is the router's indexPath for the given pools.
func RouteIndexes(pools []Pool) []uint32 {
	out := make([]uint32, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Index)
	}
	return out
}
