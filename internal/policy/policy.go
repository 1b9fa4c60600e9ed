// Package policy decides which commands may run in this invocation.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

// mutating commands sign and broadcast transactions.
var mutating = map[string]bool{
	"swap exec":         true,
	"pools create":      true,
	"positions add":     true,
	"positions burn":    true,
	"positions collect": true,
}

// CheckCommandAllowed enforces the --enable-commands allowlist. An empty
// allowlist allows everything. A bare group name such as "positions" allows
// every command under it.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		a := normalize(allowed)
		if a == normPath || strings.HasPrefix(normPath, a+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// IsMutating reports whether commandPath submits transactions.
func IsMutating(commandPath string) bool {
	return mutating[normalize(commandPath)]
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
