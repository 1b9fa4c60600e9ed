package quote

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ggonzalez94/dex-cli/internal/chain"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

var (
	priceLimitMarkers = []string{"spl", "price limit", "slippage", "too little received", "too much requested"}
	liquidityMarkers  = []string{"liquidity"}
	balanceMarkers    = []string{"stf", "exceeds balance", "insufficient balance", "insufficient funds"}
)

// Classify maps a failure to the user-facing error taxonomy. Errors that
// already carry a domain code pass through; raw detail is kept as the cause
// for logs only.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if typed, ok := clierr.As(err); ok {
		switch typed.Code {
		case clierr.CodeUnavailable, clierr.CodeInternal:
		default:
			return err
		}
	}
	if errors.Is(err, context.Canceled) {
		return clierr.Wrap(clierr.CodeUnknown, "request cancelled", err)
	}
	if isTimeout(err) {
		return clierr.Wrap(clierr.CodeTimeout, "network request timed out", err)
	}
	if revert, ok := chain.AsRevert(err); ok {
		return classifyRevert(revert)
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, balanceMarkers) {
		return clierr.Wrap(clierr.CodeInsufficientBalance, "insufficient balance", err)
	}
	return clierr.Wrap(clierr.CodeUnknown, "unexpected failure", err)
}

func classifyRevert(revert *chain.RevertError) error {
	reason := strings.ToLower(revert.Reason)
	switch {
	case reason == "":
		return clierr.Wrap(clierr.CodeReverted, "contract reverted", revert)
	case containsAny(reason, priceLimitMarkers):
		return clierr.Wrap(clierr.CodePriceLimit, "price limit too strict", revert)
	case containsAny(reason, liquidityMarkers):
		return clierr.Wrap(clierr.CodeInsufficientLiquidity, "insufficient liquidity", revert)
	case containsAny(reason, balanceMarkers):
		return clierr.Wrap(clierr.CodeInsufficientBalance, "insufficient balance", revert)
	default:
		return clierr.Wrap(clierr.CodeReverted, "contract reverted", revert)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}

// containsAny matches short revert codes such as "STF" as whole words and
// longer markers as substrings.
func containsAny(s string, markers []string) bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, m := range markers {
		if len(m) <= 3 {
			for _, w := range words {
				if w == m {
					return true
				}
			}
			continue
		}
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
