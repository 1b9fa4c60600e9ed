package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	return tmp
}

func unsetFlags() GlobalFlags {
	return GlobalFlags{Retries: -1, SlippageBps: -1}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\ntrade:\n  slippage_bps: 30\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DEX_OUTPUT", "json")
	t.Setenv("DEX_SLIPPAGE_BPS", "75")
	flags := unsetFlags()
	flags.ConfigPath = configPath
	flags.Plain = true
	flags.Retries = 5
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.SlippageBps != 75 {
		t.Fatalf("expected env slippage over file, got %d", settings.SlippageBps)
	}

	flags.SlippageBps = 10
	settings, err = Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.SlippageBps != 10 {
		t.Fatalf("expected flag slippage, got %d", settings.SlippageBps)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmp := isolate(t)
	settings, err := Load(unsetFlags())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Chain != "sepolia" || settings.SlippageBps != 50 || settings.Deadline != time.Hour {
		t.Fatalf("unexpected trade defaults: %+v", settings)
	}
	if settings.QuoteDebounce != 500*time.Millisecond || settings.ReceiptTimeout != 2*time.Minute {
		t.Fatalf("unexpected timing defaults: %+v", settings)
	}
	if want := filepath.Join(tmp, "cache", "dex", "journal.db"); settings.JournalPath != want {
		t.Fatalf("expected journal at %s, got %s", want, settings.JournalPath)
	}
}

func TestLoadFileChainAndContracts(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	body := `chain:
  name: local
  rpc_url: http://127.0.0.1:8545
  contracts:
    swap_router: "0x0000000000000000000000000000000000000003"
execution:
  receipt_timeout: 30s
  gas_multiplier: 1.5
log_level: debug
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	flags := unsetFlags()
	flags.ConfigPath = configPath
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Chain != "local" || settings.RPCURL != "http://127.0.0.1:8545" {
		t.Fatalf("unexpected chain settings: %+v", settings)
	}
	if settings.SwapRouter != "0x0000000000000000000000000000000000000003" {
		t.Fatalf("unexpected router override %q", settings.SwapRouter)
	}
	if settings.ReceiptTimeout != 30*time.Second || settings.GasMultiplier != 1.5 || settings.LogLevel != "debug" {
		t.Fatalf("unexpected execution settings: %+v", settings)
	}
}

func TestLoadRejectsOutOfRangeSlippage(t *testing.T) {
	isolate(t)
	flags := unsetFlags()
	flags.SlippageBps = 10_000
	if _, err := Load(flags); err == nil {
		t.Fatal("expected slippage range error")
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	flags := unsetFlags()
	flags.JSON, flags.Plain = true, true
	if _, err := Load(flags); err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}
