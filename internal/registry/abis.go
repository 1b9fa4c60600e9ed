package registry

// ABI fragments for the DEX contract triple and the ERC20 surface it touches.
const (
	ERC20ABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
	]`

	PoolManagerABI = `[
		{"name":"getAllPools","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"poolsInfo","type":"tuple[]","components":[{"name":"pool","type":"address"},{"name":"token0","type":"address"},{"name":"token1","type":"address"},{"name":"index","type":"uint32"},{"name":"fee","type":"uint24"},{"name":"feeProtocol","type":"uint8"},{"name":"tickLower","type":"int24"},{"name":"tickUpper","type":"int24"},{"name":"tick","type":"int24"},{"name":"sqrtPriceX96","type":"uint160"},{"name":"liquidity","type":"uint128"}]}]},
		{"name":"createAndInitializePoolIfNecessary","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"token0","type":"address"},{"name":"token1","type":"address"},{"name":"fee","type":"uint24"},{"name":"tickLower","type":"int24"},{"name":"tickUpper","type":"int24"},{"name":"sqrtPriceX96","type":"uint160"}]}],"outputs":[{"name":"pool","type":"address"}]}
	]`

	PositionManagerABI = `[
		{"name":"getAllPositions","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"positionInfo","type":"tuple[]","components":[{"name":"id","type":"uint256"},{"name":"owner","type":"address"},{"name":"token0","type":"address"},{"name":"token1","type":"address"},{"name":"index","type":"uint32"},{"name":"fee","type":"uint24"},{"name":"liquidity","type":"uint128"},{"name":"tickLower","type":"int24"},{"name":"tickUpper","type":"int24"},{"name":"tokensOwed0","type":"uint128"},{"name":"tokensOwed1","type":"uint128"},{"name":"feeGrowthInside0LastX128","type":"uint256"},{"name":"feeGrowthInside1LastX128","type":"uint256"}]}]},
		{"name":"mint","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"token0","type":"address"},{"name":"token1","type":"address"},{"name":"index","type":"uint32"},{"name":"amount0Desired","type":"uint256"},{"name":"amount1Desired","type":"uint256"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"}]}],"outputs":[{"name":"positionId","type":"uint256"},{"name":"liquidity","type":"uint128"},{"name":"amount0","type":"uint256"},{"name":"amount1","type":"uint256"}]},
		{"name":"burn","type":"function","stateMutability":"nonpayable","inputs":[{"name":"positionId","type":"uint256"}],"outputs":[{"name":"amount0","type":"uint256"},{"name":"amount1","type":"uint256"}]},
		{"name":"collect","type":"function","stateMutability":"nonpayable","inputs":[{"name":"positionId","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[{"name":"amount0","type":"uint256"},{"name":"amount1","type":"uint256"}]}
	]`

	SwapRouterABI = `[
		{"name":"exactInput","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"indexPath","type":"uint32[]"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]},
		{"name":"exactOutput","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"indexPath","type":"uint32[]"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountOut","type":"uint256"},{"name":"amountInMaximum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountIn","type":"uint256"}]},
		{"name":"quoteExactInput","type":"function","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"indexPath","type":"uint32[]"},{"name":"amountIn","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]},
		{"name":"quoteExactOutput","type":"function","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"indexPath","type":"uint32[]"},{"name":"amount","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountIn","type":"uint256"}]}
	]`
)
