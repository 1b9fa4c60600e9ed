package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")
	t.Setenv(EnvKeystorePassword, "")
	t.Setenv(EnvKeystorePasswordFile, "")
}

func TestNewLocalSignerFromEnvHex(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	s, err := NewLocalSignerFromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
	tx := types.NewTx(&types.LegacyTx{
		To:       ptrAddress(common.HexToAddress("0x0000000000000000000000000000000000000001")),
		Value:    big.NewInt(0),
		Gas:      21_000,
		GasPrice: big.NewInt(1),
	})
	if _, err := s.SignTx(big.NewInt(11155111), tx); err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
}

func TestNewLocalSignerFromEnvFile(t *testing.T) {
	clearKeyEnv(t)
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("0x"+testPrivateKey+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, keyFile)

	s, err := NewLocalSignerFromEnv(KeySourceFile)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
}

func TestNewLocalSignerFromEnvAutoUsesDefaultKeyFile(t *testing.T) {
	clearKeyEnv(t)
	cfgDir := t.TempDir()
	keyDir := filepath.Join(cfgDir, "dex")
	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, "key.hex"), []byte(testPrivateKey), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv("XDG_CONFIG_HOME", cfgDir)

	if _, err := NewLocalSignerFromEnv(KeySourceAuto); err != nil {
		t.Fatalf("expected auto key-source to use default key path: %v", err)
	}
}

func TestNewLocalSignerFromInputsOverrideWinsOverFileSource(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKeyFile, "/tmp/does-not-exist")
	s, err := NewLocalSignerFromInputs(KeySourceFile, testPrivateKey)
	if err != nil {
		t.Fatalf("expected private key override to win over file key-source: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
}

func TestNewLocalSignerRejectsUnknownSource(t *testing.T) {
	clearKeyEnv(t)
	if _, err := NewLocalSignerFromInputs("ledger", ""); err == nil {
		t.Fatal("expected unsupported key source error")
	}
}

func TestDefaultPrivateKeyPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/dex-config-home")
	if got, want := defaultPrivateKeyPath(), "/tmp/dex-config-home/dex/key.hex"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMissingKeyErrorIncludesHints(t *testing.T) {
	clearKeyEnv(t)
	_, err := NewLocalSignerFromInputs(KeySourceAuto, "")
	if err == nil {
		t.Fatal("expected missing key error")
	}
	msg := err.Error()
	if !strings.Contains(msg, defaultPrivateKeyHintPath) || !strings.Contains(msg, "--private-key") {
		t.Fatalf("expected path and flag hints, got: %s", msg)
	}
}

func TestSessionConnectDisconnect(t *testing.T) {
	clearKeyEnv(t)
	session := NewSession(nil)
	if _, ok := session.Current(); ok {
		t.Fatal("expected disconnected session")
	}
	local, err := NewLocalSignerFromInputs(KeySourceAuto, testPrivateKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	session.Connect(local)
	addr, ok := session.Current()
	if !ok || addr != local.Address() {
		t.Fatalf("expected connected address %s, got %s ok=%v", local.Address(), addr, ok)
	}
	session.Disconnect()
	if _, ok := session.Current(); ok {
		t.Fatal("expected session to be disconnected")
	}
	if session.Signer() != nil {
		t.Fatal("expected nil signer after disconnect")
	}
	var nilSession *Session
	if _, ok := nilSession.Current(); ok {
		t.Fatal("nil session must report disconnected")
	}
}

func ptrAddress(v common.Address) *common.Address { return &v }

func TestConnected(t *testing.T) {
	clearKeyEnv(t)
	if _, err := Connected(nil); !clierr.IsCode(err, clierr.CodeNotConnected) {
		t.Fatalf("nil account: expected not connected, got %v", err)
	}
	var nilSession *Session
	if _, err := Connected(nilSession); !clierr.IsCode(err, clierr.CodeNotConnected) {
		t.Fatalf("nil session: expected not connected, got %v", err)
	}
	local, err := NewLocalSignerFromInputs(KeySourceAuto, testPrivateKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	addr, err := Connected(NewSession(local))
	if err != nil || addr != local.Address() {
		t.Fatalf("expected %s, got %s err=%v", local.Address(), addr, err)
	}
}
