package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	ChainID   string      `json:"chain_id,omitempty"`
	Cache     CacheStatus `json:"cache"`
	Partial   bool        `json:"partial"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals int    `json:"decimals"`
	Known    bool   `json:"known"`
}

type TokenBalance struct {
	Token   TokenInfo  `json:"token"`
	Account string     `json:"account"`
	Balance AmountInfo `json:"balance"`
	Error   string     `json:"error,omitempty"`
}

type PoolInfo struct {
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Token0Symbol string `json:"token0_symbol,omitempty"`
	Token1Symbol string `json:"token1_symbol,omitempty"`
	Index        uint32 `json:"index"`
	Fee          uint32 `json:"fee"`
	FeePercent   string `json:"fee_percent"`
	FeeProtocol  uint8  `json:"fee_protocol"`
	TickLower    int32  `json:"tick_lower"`
	TickUpper    int32  `json:"tick_upper"`
	Tick         int32  `json:"tick"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
}

type SwapQuote struct {
	ChainID       string     `json:"chain_id"`
	TradeType     string     `json:"trade_type"`
	TokenIn       TokenInfo  `json:"token_in"`
	TokenOut      TokenInfo  `json:"token_out"`
	AmountIn      AmountInfo `json:"amount_in"`
	AmountOut     AmountInfo `json:"amount_out"`
	Display       string     `json:"display"`
	Route         []uint32   `json:"route"`
	SlippageBps   int64      `json:"slippage_bps"`
	AmountBound   AmountInfo `json:"amount_bound"`
	BoundKind     string     `json:"bound_kind"`
	PriceLimitX96 string     `json:"sqrt_price_limit_x96"`
	QuotedAt      string     `json:"quoted_at"`
}

type PositionInfo struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Index       uint32 `json:"index"`
	Fee         uint32 `json:"fee"`
	Liquidity   string `json:"liquidity"`
	TickLower   int32  `json:"tick_lower"`
	TickUpper   int32  `json:"tick_upper"`
	TokensOwed0 string `json:"tokens_owed0"`
	TokensOwed1 string `json:"tokens_owed1"`
}

type ActionResult struct {
	ActionID    string            `json:"action_id"`
	Action      string            `json:"action"`
	Status      string            `json:"status"`
	Stages      []string          `json:"stages"`
	TxHash      string            `json:"tx_hash,omitempty"`
	ApprovalTxs []string          `json:"approval_txs,omitempty"`
	BlockNumber uint64            `json:"block_number,omitempty"`
	GasUsed     uint64            `json:"gas_used,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Balances    []TokenBalance    `json:"balances,omitempty"`
}
