// Package journal keeps a local record of every terminal swap and liquidity
// action so `actions list|show` can report them after the process exits.
package journal

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Record struct {
	ID          string            `json:"action_id"`
	Action      string            `json:"action"`
	Status      Status            `json:"status"`
	ChainID     string            `json:"chain_id"`
	Account     string            `json:"account,omitempty"`
	Stages      []string          `json:"stages"`
	TxHash      string            `json:"tx_hash,omitempty"`
	ApprovalTxs []string          `json:"approval_txs,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	ErrorType   string            `json:"error_type,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

func NewID() string {
	return "act_" + uuid.NewString()
}

func NewRecord(id, action, chainID string) Record {
	now := time.Now().UTC().Format(time.RFC3339)
	return Record{
		ID:        id,
		Action:    action,
		ChainID:   chainID,
		Stages:    []string{},
		Details:   map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
