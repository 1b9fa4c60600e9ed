// Package chain is the contract-facing collaborator of the orchestration
// core: read-only quotes and listings, state-mutating calls that return a
// pending transaction hash, and receipt waiting.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/dex-cli/internal/dex"
)

type Client interface {
	GetAllPools(ctx context.Context) ([]dex.Pool, error)
	GetAllPositions(ctx context.Context) ([]Position, error)

	QuoteExactInput(ctx context.Context, params QuoteParams) (*big.Int, error)
	QuoteExactOutput(ctx context.Context, params QuoteParams) (*big.Int, error)

	CreateAndInitializePoolIfNecessary(ctx context.Context, params CreatePoolParams) (common.Hash, error)
	Mint(ctx context.Context, params MintParams) (common.Hash, error)
	Burn(ctx context.Context, positionID *big.Int) (common.Hash, error)
	Collect(ctx context.Context, positionID *big.Int, recipient common.Address) (common.Hash, error)
	ExactInput(ctx context.Context, params ExactInputParams) (common.Hash, error)
	ExactOutput(ctx context.Context, params ExactOutputParams) (common.Hash, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)

	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenMetadata(ctx context.Context, token common.Address) (dex.Token, error)

	WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (Receipt, error)

	// Spenders reports the contracts that pull tokens from the account.
	Spenders() Spenders
}

type Spenders struct {
	SwapRouter      common.Address
	PositionManager common.Address
}

// QuoteParams is the read-only quote request. Amount is the exact input for
// QuoteExactInput and the exact output for QuoteExactOutput.
type QuoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	IndexPath         []uint32
	Amount            *big.Int
	SqrtPriceLimitX96 *big.Int
}

type ExactInputParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	IndexPath         []uint32       `abi:"indexPath"`
	Recipient         common.Address `abi:"recipient"`
	Deadline          *big.Int       `abi:"deadline"`
	AmountIn          *big.Int       `abi:"amountIn"`
	AmountOutMinimum  *big.Int       `abi:"amountOutMinimum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type ExactOutputParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	IndexPath         []uint32       `abi:"indexPath"`
	Recipient         common.Address `abi:"recipient"`
	Deadline          *big.Int       `abi:"deadline"`
	AmountOut         *big.Int       `abi:"amountOut"`
	AmountInMaximum   *big.Int       `abi:"amountInMaximum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

// CreatePoolParams carries uint24/int24 fields as *big.Int, which is how the
// ABI encoder represents non-native integer widths.
type CreatePoolParams struct {
	Token0       common.Address `abi:"token0"`
	Token1       common.Address `abi:"token1"`
	Fee          *big.Int       `abi:"fee"`
	TickLower    *big.Int       `abi:"tickLower"`
	TickUpper    *big.Int       `abi:"tickUpper"`
	SqrtPriceX96 *big.Int       `abi:"sqrtPriceX96"`
}

type MintParams struct {
	Token0         common.Address `abi:"token0"`
	Token1         common.Address `abi:"token1"`
	Index          uint32         `abi:"index"`
	Amount0Desired *big.Int       `abi:"amount0Desired"`
	Amount1Desired *big.Int       `abi:"amount1Desired"`
	Recipient      common.Address `abi:"recipient"`
	Deadline       *big.Int       `abi:"deadline"`
}

// Position mirrors the PositionManager's position info tuple.
type Position struct {
	ID                       *big.Int
	Owner                    common.Address
	Token0                   common.Address
	Token1                   common.Address
	Index                    uint32
	Fee                      uint32
	Liquidity                *big.Int
	TickLower                int32
	TickUpper                int32
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
}

type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

func (r Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}
