package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DEXContracts is one deployment of the PoolManager / PositionManager /
// SwapRouter triple.
type DEXContracts struct {
	PoolManager     string
	PositionManager string
	SwapRouter      string
}

// Canonical DEX deployments by chain ID. Local chains have no default and
// must be configured.
var dexContractsByChainID = map[int64]DEXContracts{
	11155111: {
		PoolManager:     "0x6971599124195Ae42543b0613dF9A417D89c4944",
		PositionManager: "0x8363bEAEc310B579D26CBdcA175E4853a7bcFDC6",
		SwapRouter:      "0x1b4692Bd0EB88cB0a0C5F0E4f6950FA30F6db94a",
	},
}

func Contracts(chainID int64) (DEXContracts, bool) {
	contracts, ok := dexContractsByChainID[chainID]
	return contracts, ok
}

// ResolveContracts layers non-empty overrides over the chain's canonical
// deployment and validates every address.
func ResolveContracts(chainID int64, override DEXContracts) (DEXContracts, error) {
	out, _ := Contracts(chainID)
	if v := strings.TrimSpace(override.PoolManager); v != "" {
		out.PoolManager = v
	}
	if v := strings.TrimSpace(override.PositionManager); v != "" {
		out.PositionManager = v
	}
	if v := strings.TrimSpace(override.SwapRouter); v != "" {
		out.SwapRouter = v
	}
	for name, value := range map[string]string{
		"pool manager":     out.PoolManager,
		"position manager": out.PositionManager,
		"swap router":      out.SwapRouter,
	} {
		if value == "" {
			return DEXContracts{}, fmt.Errorf("no %s configured for chain id %d", name, chainID)
		}
		if !common.IsHexAddress(value) {
			return DEXContracts{}, fmt.Errorf("invalid %s address %q", name, value)
		}
	}
	return out, nil
}
