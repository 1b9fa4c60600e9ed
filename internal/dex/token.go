// Package dex holds the identity rules shared by every DEX operation: token
// ordering, pool lookup, fee-tier tick ranges and sqrt price bounds.
package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

// Token is an ERC20 as the CLI sees it. Balance and PriceUSD are optional
// snapshots and never take part in identity.
type Token struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int
	Balance  *big.Int
	PriceUSD float64
}

// Key is the canonical identity of the token: its lowercased 0x-prefixed
// hex address.
func (t Token) Key() string {
	if !t.Valid() {
		return strings.ToLower(strings.TrimSpace(t.Address))
	}
	return strings.ToLower(t.Addr().Hex())
}

func (t Token) Addr() common.Address {
	return common.HexToAddress(strings.TrimSpace(t.Address))
}

func (t Token) Valid() bool {
	return common.IsHexAddress(strings.TrimSpace(t.Address))
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Key()
}

// SortTokens orders a pair canonically. The result does not depend on the
// argument order; identical addresses are rejected.
func SortTokens(a, b Token) (Token, Token, error) {
	if !a.Valid() || !b.Valid() {
		return Token{}, Token{}, clierr.New(clierr.CodeUsage, "token address must be a 20-byte hex string")
	}
	ka, kb := a.Key(), b.Key()
	if ka == kb {
		return Token{}, Token{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("identical token addresses: %s", ka))
	}
	if ka < kb {
		return a, b, nil
	}
	return b, a, nil
}

// IsToken0 reports whether t sorts first against other.
func IsToken0(t, other Token) bool {
	return t.Key() < other.Key()
}
