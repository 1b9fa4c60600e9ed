package signer

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// Account reports the connected account at the moment of the call.
type Account interface {
	Current() (common.Address, bool)
}

// Connected returns the account's current address, or a not-connected error
// when no wallet is connected.
func Connected(account Account) (common.Address, error) {
	if account == nil {
		return common.Address{}, clierr.New(clierr.CodeNotConnected, "no wallet connected")
	}
	addr, ok := account.Current()
	if !ok || addr == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeNotConnected, "no wallet connected")
	}
	return addr, nil
}

// Session is the connected-wallet state shared by the orchestration core. It
// may be connected, swapped or disconnected at any time; readers must call
// Current or Signer on every use instead of caching the result.
type Session struct {
	mu     sync.RWMutex
	signer Signer
}

func NewSession(s Signer) *Session {
	return &Session{signer: s}
}

func (s *Session) Connect(signer Signer) {
	s.mu.Lock()
	s.signer = signer
	s.mu.Unlock()
}

func (s *Session) Disconnect() {
	s.Connect(nil)
}

func (s *Session) Current() (common.Address, bool) {
	if s == nil {
		return common.Address{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signer == nil {
		return common.Address{}, false
	}
	return s.signer.Address(), true
}

// Signer returns the connected signer, or nil when disconnected.
func (s *Session) Signer() Signer {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer
}
