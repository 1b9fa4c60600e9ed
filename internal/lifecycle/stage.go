// Package lifecycle drives one user-initiated on-chain action at a time
// through quoting, building, submission and confirmation, and is the single
// place where failures are classified, reported and cleaned up.
package lifecycle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/dex-cli/internal/builder"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/quote"
)

type Stage string

const (
	StageIdle       Stage = "idle"
	StageQuoting    Stage = "quoting"
	StageBuilding   Stage = "building"
	StageSubmitted  Stage = "submitted"
	StageConfirming Stage = "confirming"
	StageSucceeded  Stage = "succeeded"
	StageFailed     Stage = "failed"
)

func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}

const (
	ActionSwap         = "swap"
	ActionCreatePool   = "create_pool"
	ActionAddLiquidity = "add_liquidity"
	ActionBurn         = "burn"
	ActionCollect      = "collect"
)

// Notifier is the loading/status surface. Failure receives an already
// classified error; render it with errors.UserMessage.
type Notifier interface {
	SetLoading(loading bool)
	Status(stage Stage, message string)
	Success(message string)
	Failure(err error)
}

type NopNotifier struct{}

func (NopNotifier) SetLoading(bool)      {}
func (NopNotifier) Status(Stage, string) {}
func (NopNotifier) Success(string)       {}
func (NopNotifier) Failure(error)        {}

// Result is the outcome of one action. Stages always starts with idle and,
// once the state machine has started, ends in a terminal stage.
type Result struct {
	ID        string
	Action    string
	Stages    []Stage
	Quote     *quote.Quote
	Swap      *builder.Swap
	Pool      *builder.PoolCreation
	Liquidity *builder.Liquidity
	Approvals []common.Hash
	TxHash    common.Hash
	Receipt   *chain.Receipt
	Balances  map[string]*big.Int
}

// Final is the last stage reached.
func (r Result) Final() Stage {
	if len(r.Stages) == 0 {
		return StageIdle
	}
	return r.Stages[len(r.Stages)-1]
}
