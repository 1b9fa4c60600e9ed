package dex

import (
	"fmt"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

// FullRangeTick is the widest tick multiple of 60 accepted by the pools.
const FullRangeTick int32 = 887220

// FeeTiers lists the supported fees in hundredths of a basis point.
var FeeTiers = []uint32{500, 3000, 10000}

var tickRanges = map[uint32]int32{
	500:   60,
	3000:  FullRangeTick,
	10000: FullRangeTick,
}

// TickRangeForFee returns the default position range for a fee tier. Unknown
// tiers get the full range.
func TickRangeForFee(fee uint32) (int32, int32) {
	if width, ok := tickRanges[fee]; ok {
		return -width, width
	}
	return -FullRangeTick, FullRangeTick
}

func ValidateFee(fee uint32) error {
	for _, f := range FeeTiers {
		if f == fee {
			return nil
		}
	}
	return clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported fee tier %d (expected one of 500, 3000, 10000)", fee))
}

// FeePercent renders a fee tier as a percentage string, e.g. 3000 -> "0.3%".
func FeePercent(fee uint32) string {
	whole := fee / 10000
	frac := fee % 10000
	if frac == 0 {
		return fmt.Sprintf("%d%%", whole)
	}
	s := fmt.Sprintf("%d.%04d", whole, frac)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s + "%"
}
