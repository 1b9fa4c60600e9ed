package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/registry"
	"github.com/ggonzalez94/dex-cli/internal/signer"
	"go.uber.org/zap"
)

var (
	erc20ABI           = mustABI(registry.ERC20ABI)
	poolManagerABI     = mustABI(registry.PoolManagerABI)
	positionManagerABI = mustABI(registry.PositionManagerABI)
	swapRouterABI      = mustABI(registry.SwapRouterABI)
)

// Wallet hands out the connected signer at the moment of use.
type Wallet interface {
	Signer() signer.Signer
}

type Options struct {
	Simulate           bool
	PollInterval       time.Duration
	ReceiptTimeout     time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultOptions() Options {
	return Options{
		Simulate:       true,
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
	}
}

// EVM implements Client over a JSON-RPC endpoint.
type EVM struct {
	rpc       *ethclient.Client
	contracts registry.DEXContracts
	wallet    Wallet
	opts      Options
	log       *zap.Logger

	// serializes nonce allocation for concurrent sends from one process
	nonceMu sync.Mutex
}

func Dial(ctx context.Context, rpcURL string, contracts registry.DEXContracts, wallet Wallet, opts Options, log *zap.Logger) (*EVM, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, clierr.New(clierr.CodeUsage, "missing rpc url")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return New(client, contracts, wallet, opts, log), nil
}

func New(client *ethclient.Client, contracts registry.DEXContracts, wallet Wallet, opts Options, log *zap.Logger) *EVM {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaults.ReceiptTimeout
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = defaults.GasMultiplier
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EVM{rpc: client, contracts: contracts, wallet: wallet, opts: opts, log: log}
}

func (c *EVM) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *EVM) Spenders() Spenders {
	return Spenders{
		SwapRouter:      common.HexToAddress(c.contracts.SwapRouter),
		PositionManager: common.HexToAddress(c.contracts.PositionManager),
	}
}

type poolInfo struct {
	Pool         common.Address
	Token0       common.Address
	Token1       common.Address
	Index        uint32
	Fee          *big.Int
	FeeProtocol  uint8
	TickLower    *big.Int
	TickUpper    *big.Int
	Tick         *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

type positionInfo struct {
	Id                       *big.Int
	Owner                    common.Address
	Token0                   common.Address
	Token1                   common.Address
	Index                    uint32
	Fee                      *big.Int
	Liquidity                *big.Int
	TickLower                *big.Int
	TickUpper                *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
}

type quoteExactInputParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	IndexPath         []uint32       `abi:"indexPath"`
	AmountIn          *big.Int       `abi:"amountIn"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type quoteExactOutputParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	IndexPath         []uint32       `abi:"indexPath"`
	Amount            *big.Int       `abi:"amount"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

func (c *EVM) GetAllPools(ctx context.Context) ([]dex.Pool, error) {
	values, err := c.call(ctx, poolManagerABI, common.HexToAddress(c.contracts.PoolManager), "getAllPools")
	if err != nil {
		return nil, err
	}
	infos := *abi.ConvertType(values[0], new([]poolInfo)).(*[]poolInfo)
	out := make([]dex.Pool, 0, len(infos))
	for _, info := range infos {
		out = append(out, dex.Pool{
			Address:      info.Pool,
			Token0:       info.Token0,
			Token1:       info.Token1,
			Index:        info.Index,
			Fee:          uint32(info.Fee.Uint64()),
			FeeProtocol:  info.FeeProtocol,
			TickLower:    int32(info.TickLower.Int64()),
			TickUpper:    int32(info.TickUpper.Int64()),
			Tick:         int32(info.Tick.Int64()),
			SqrtPriceX96: info.SqrtPriceX96,
			Liquidity:    info.Liquidity,
		})
	}
	return out, nil
}

func (c *EVM) GetAllPositions(ctx context.Context) ([]Position, error) {
	values, err := c.call(ctx, positionManagerABI, common.HexToAddress(c.contracts.PositionManager), "getAllPositions")
	if err != nil {
		return nil, err
	}
	infos := *abi.ConvertType(values[0], new([]positionInfo)).(*[]positionInfo)
	out := make([]Position, 0, len(infos))
	for _, info := range infos {
		out = append(out, Position{
			ID:                       info.Id,
			Owner:                    info.Owner,
			Token0:                   info.Token0,
			Token1:                   info.Token1,
			Index:                    info.Index,
			Fee:                      uint32(info.Fee.Uint64()),
			Liquidity:                info.Liquidity,
			TickLower:                int32(info.TickLower.Int64()),
			TickUpper:                int32(info.TickUpper.Int64()),
			TokensOwed0:              info.TokensOwed0,
			TokensOwed1:              info.TokensOwed1,
			FeeGrowthInside0LastX128: info.FeeGrowthInside0LastX128,
			FeeGrowthInside1LastX128: info.FeeGrowthInside1LastX128,
		})
	}
	return out, nil
}

func (c *EVM) QuoteExactInput(ctx context.Context, params QuoteParams) (*big.Int, error) {
	return c.callBig(ctx, swapRouterABI, common.HexToAddress(c.contracts.SwapRouter), "quoteExactInput", quoteExactInputParams{
		TokenIn:           params.TokenIn,
		TokenOut:          params.TokenOut,
		IndexPath:         params.IndexPath,
		AmountIn:          params.Amount,
		SqrtPriceLimitX96: params.SqrtPriceLimitX96,
	})
}

func (c *EVM) QuoteExactOutput(ctx context.Context, params QuoteParams) (*big.Int, error) {
	return c.callBig(ctx, swapRouterABI, common.HexToAddress(c.contracts.SwapRouter), "quoteExactOutput", quoteExactOutputParams{
		TokenIn:           params.TokenIn,
		TokenOut:          params.TokenOut,
		IndexPath:         params.IndexPath,
		Amount:            params.Amount,
		SqrtPriceLimitX96: params.SqrtPriceLimitX96,
	})
}

func (c *EVM) CreateAndInitializePoolIfNecessary(ctx context.Context, params CreatePoolParams) (common.Hash, error) {
	return c.transact(ctx, poolManagerABI, common.HexToAddress(c.contracts.PoolManager), "createAndInitializePoolIfNecessary", params)
}

func (c *EVM) Mint(ctx context.Context, params MintParams) (common.Hash, error) {
	return c.transact(ctx, positionManagerABI, common.HexToAddress(c.contracts.PositionManager), "mint", params)
}

func (c *EVM) Burn(ctx context.Context, positionID *big.Int) (common.Hash, error) {
	return c.transact(ctx, positionManagerABI, common.HexToAddress(c.contracts.PositionManager), "burn", positionID)
}

func (c *EVM) Collect(ctx context.Context, positionID *big.Int, recipient common.Address) (common.Hash, error) {
	return c.transact(ctx, positionManagerABI, common.HexToAddress(c.contracts.PositionManager), "collect", positionID, recipient)
}

func (c *EVM) ExactInput(ctx context.Context, params ExactInputParams) (common.Hash, error) {
	return c.transact(ctx, swapRouterABI, common.HexToAddress(c.contracts.SwapRouter), "exactInput", params)
}

func (c *EVM) ExactOutput(ctx context.Context, params ExactOutputParams) (common.Hash, error) {
	return c.transact(ctx, swapRouterABI, common.HexToAddress(c.contracts.SwapRouter), "exactOutput", params)
}

func (c *EVM) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	return c.transact(ctx, erc20ABI, token, "approve", spender, amount)
}

func (c *EVM) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callBig(ctx, erc20ABI, token, "allowance", owner, spender)
}

func (c *EVM) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callBig(ctx, erc20ABI, token, "balanceOf", owner)
}

func (c *EVM) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	balance, err := c.rpc.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return balance, nil
}

func (c *EVM) TokenMetadata(ctx context.Context, token common.Address) (dex.Token, error) {
	values, err := c.call(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return dex.Token{}, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return dex.Token{}, clierr.New(clierr.CodeUnavailable, "decode token decimals")
	}
	out := dex.Token{Address: token.Hex(), Decimals: int(decimals)}
	// symbol and name are optional in ERC20; a missing one is not fatal
	if values, err := c.call(ctx, erc20ABI, token, "symbol"); err == nil {
		out.Symbol, _ = values[0].(string)
	}
	if values, err := c.call(ctx, erc20ABI, token, "name"); err == nil {
		out.Name, _ = values[0].(string)
	}
	return out, nil
}

// WaitForTransactionReceipt polls until the receipt is available or the
// client's receipt timeout elapses. A reverted transaction is returned as a
// receipt with a failed status, not as an error.
func (c *EVM) WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.rpc.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			out := Receipt{TxHash: hash, Status: receipt.Status, GasUsed: receipt.GasUsed}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt poll failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return Receipt{}, ctx.Err()
			}
			return Receipt{}, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *EVM) call(ctx context.Context, contract abi.ABI, target common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	if s := c.currentSigner(); s != nil {
		msg.From = s.Address()
	}
	out, err := c.rpc.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, wrapCallError(err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s result", method), err)
	}
	return values, nil
}

func (c *EVM) callBig(ctx context.Context, contract abi.ABI, target common.Address, method string, args ...any) (*big.Int, error) {
	values, err := c.call(ctx, contract, target, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("decode %s result", method))
	}
	return v, nil
}

func (c *EVM) currentSigner() signer.Signer {
	if c.wallet == nil {
		return nil
	}
	return c.wallet.Signer()
}

func (c *EVM) transact(ctx context.Context, contract abi.ABI, target common.Address, method string, args ...any) (common.Hash, error) {
	txSigner := c.currentSigner()
	if txSigner == nil {
		return common.Hash{}, clierr.New(clierr.CodeNotConnected, "no wallet connected")
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	chainID, err := c.rpc.ChainID(ctx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	from := txSigner.Address()
	msg := ethereum.CallMsg{From: from, To: &target, Value: big.NewInt(0), Data: data}

	if c.opts.Simulate {
		if _, err := c.rpc.CallContract(ctx, msg, nil); err != nil {
			return common.Hash{}, wrapCallError(err)
		}
	}
	gasLimit, err := c.rpc.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, wrapCallError(err)
	}
	gasLimit = uint64(float64(gasLimit) * c.opts.GasMultiplier)

	tipCap, err := c.resolveTipCap(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, c.opts.MaxFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	nonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeNotConnected, "sign transaction", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, wrapCallError(err)
	}
	c.log.Debug("transaction sent",
		zap.String("method", method),
		zap.String("to", target.Hex()),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit),
	)
	return signed.Hash(), nil
}

func (c *EVM) resolveTipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(c.opts.MaxPriorityFeeGwei) != "" {
		v, err := parseGwei(c.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	return feeCap.Add(feeCap, tipCap), nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
