package chain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

var errorStringSelector = common.FromHex("0x08c379a0")

// RevertError is a contract call that the EVM rejected. Reason is decoded from
// the revert payload when the node returns one.
type RevertError struct {
	Reason string
	Data   []byte
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error { return e.Err }

// AsRevert returns the revert carried by err, if any.
func AsRevert(err error) (*RevertError, bool) {
	var target *RevertError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func decodeRevertData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	if bytes.Equal(data[:4], errorStringSelector) {
		return "malformed Error(string) payload"
	}
	return fmt.Sprintf("custom error 0x%x", data[:4])
}

func revertDataFromError(err error) []byte {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		return common.FromHex(v)
	case []byte:
		return v
	default:
		return nil
	}
}

func decodeRevertFromError(err error) string {
	if err == nil {
		return ""
	}
	if reason := decodeRevertData(revertDataFromError(err)); reason != "" {
		return reason
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("execution reverted:"):])
	}
	return ""
}

// wrapCallError turns node errors that describe a revert into *RevertError
// and leaves everything else untouched.
func wrapCallError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsRevert(err); ok {
		return err
	}
	data := revertDataFromError(err)
	if len(data) == 0 && !strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return err
	}
	return &RevertError{Reason: decodeRevertFromError(err), Data: data, Err: err}
}
