package dex

import (
	"math/big"
)

var (
	// MinSqrtRatio and MaxSqrtRatio bound sqrtPriceX96 at the min and max ticks.
	MinSqrtRatio = big.NewInt(4295128739)
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342")

	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big integer literal: " + s)
	}
	return v
}

// PriceLimit is the loosest sqrt price limit a swap from tokenIn to tokenOut
// may carry. Selling token0 pushes the price down, so the bound sits just
// above the minimum; selling token1 bounds it just below the maximum.
func PriceLimit(tokenIn, tokenOut Token) *big.Int {
	if IsToken0(tokenIn, tokenOut) {
		return new(big.Int).Add(MinSqrtRatio, big.NewInt(1))
	}
	return new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1))
}

// InitialSqrtPriceX96 prices a new pool at one whole token1 per whole token0,
// each scaled by its own decimals: sqrt(10^dec1 / 10^dec0) * 2^96. The square
// root is taken over 10^dec1 * 2^192 / 10^dec0 to stay in integers.
func InitialSqrtPriceX96(token0, token1 Token) *big.Int {
	num := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token1.Decimals)), nil)
	num.Lsh(num, 192)
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token0.Decimals)), nil)
	ratio := num.Quo(num, den)
	out := new(big.Int).Sqrt(ratio)
	if out.Cmp(MinSqrtRatio) < 0 {
		return new(big.Int).Set(MinSqrtRatio)
	}
	if out.Cmp(MaxSqrtRatio) >= 0 {
		return new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1))
	}
	return out
}
