package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultChain          = "sepolia"
	DefaultSlippageBps    = 50
	DefaultDeadline       = time.Hour
	DefaultQuoteDebounce  = 500 * time.Millisecond
	DefaultPollInterval   = 2 * time.Second
	DefaultReceiptTimeout = 2 * time.Minute
	DefaultGasMultiplier  = 1.2
	DefaultLogLevel       = "warn"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	Retries        int
	MaxStale       string
	NoStale        bool
	NoCache        bool
	Chain          string
	RPCURL         string
	SubgraphURL    string
	SlippageBps    int64
	Deadline       string
	LogLevel       string
	MetricsFile    string
	KeySource      string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Strict         bool
	Timeout        time.Duration
	Retries        int
	MaxStale       time.Duration
	NoStale        bool
	CacheEnabled   bool
	CachePath      string
	CacheLockPath  string

	JournalPath     string
	JournalLockPath string

	Chain           string
	RPCURL          string
	PoolManager     string
	PositionManager string
	SwapRouter      string
	SubgraphURL     string
	SubgraphAPIKey  string

	SlippageBps         int64
	Deadline            time.Duration
	QuoteDebounce       time.Duration
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
	GasMultiplier       float64
	MaxFeeGwei          string
	MaxPriorityFeeGwei  string

	LogLevel    string
	MetricsFile string
	KeySource   string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Strict   *bool  `yaml:"strict"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	LogLevel string `yaml:"log_level"`
	Metrics  struct {
		File string `yaml:"file"`
	} `yaml:"metrics"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		MaxStale string `yaml:"max_stale"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Journal struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Chain struct {
		Name      string `yaml:"name"`
		RPCURL    string `yaml:"rpc_url"`
		Contracts struct {
			PoolManager     string `yaml:"pool_manager"`
			PositionManager string `yaml:"position_manager"`
			SwapRouter      string `yaml:"swap_router"`
		} `yaml:"contracts"`
	} `yaml:"chain"`
	Subgraph struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"subgraph"`
	Trade struct {
		SlippageBps   *int64 `yaml:"slippage_bps"`
		Deadline      string `yaml:"deadline"`
		QuoteDebounce string `yaml:"quote_debounce"`
	} `yaml:"trade"`
	Execution struct {
		PollInterval       string   `yaml:"poll_interval"`
		ReceiptTimeout     string   `yaml:"receipt_timeout"`
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
		KeySource          string   `yaml:"key_source"`
	} `yaml:"execution"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if settings.SlippageBps < 0 || settings.SlippageBps >= 10_000 {
		return Settings{}, fmt.Errorf("slippage must be in [0, 10000) bps, got %d", settings.SlippageBps)
	}
	if settings.Deadline <= 0 {
		return Settings{}, fmt.Errorf("deadline must be positive")
	}
	if settings.QuoteDebounce <= 0 {
		settings.QuoteDebounce = DefaultQuoteDebounce
	}
	if settings.ReceiptPollInterval <= 0 {
		settings.ReceiptPollInterval = DefaultPollInterval
	}
	if settings.ReceiptTimeout <= 0 {
		settings.ReceiptTimeout = DefaultReceiptTimeout
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = DefaultGasMultiplier
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:          "json",
		Timeout:             10 * time.Second,
		Retries:             2,
		MaxStale:            5 * time.Minute,
		CacheEnabled:        true,
		CachePath:           cachePath,
		CacheLockPath:       lockPath,
		JournalPath:         filepath.Join(cacheDir, "journal.db"),
		JournalLockPath:     filepath.Join(cacheDir, "journal.lock"),
		Chain:               DefaultChain,
		SlippageBps:         DefaultSlippageBps,
		Deadline:            DefaultDeadline,
		QuoteDebounce:       DefaultQuoteDebounce,
		ReceiptPollInterval: DefaultPollInterval,
		ReceiptTimeout:      DefaultReceiptTimeout,
		GasMultiplier:       DefaultGasMultiplier,
		LogLevel:            DefaultLogLevel,
		KeySource:           "auto",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("DEX_CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "dex", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "dex")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if err := setDuration(&settings.Timeout, cfg.Timeout, "config timeout"); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = cfg.LogLevel
	}
	if cfg.Metrics.File != "" {
		settings.MetricsFile = cfg.Metrics.File
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if err := setDuration(&settings.MaxStale, cfg.Cache.MaxStale, "config cache.max_stale"); err != nil {
		return err
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)
	setString(&settings.JournalPath, cfg.Journal.Path)
	setString(&settings.JournalLockPath, cfg.Journal.LockPath)

	setString(&settings.Chain, cfg.Chain.Name)
	setString(&settings.RPCURL, cfg.Chain.RPCURL)
	setString(&settings.PoolManager, cfg.Chain.Contracts.PoolManager)
	setString(&settings.PositionManager, cfg.Chain.Contracts.PositionManager)
	setString(&settings.SwapRouter, cfg.Chain.Contracts.SwapRouter)

	setString(&settings.SubgraphURL, cfg.Subgraph.URL)
	setString(&settings.SubgraphAPIKey, cfg.Subgraph.APIKey)
	if cfg.Subgraph.APIKeyEnv != "" {
		settings.SubgraphAPIKey = os.Getenv(cfg.Subgraph.APIKeyEnv)
	}

	if cfg.Trade.SlippageBps != nil {
		settings.SlippageBps = *cfg.Trade.SlippageBps
	}
	if err := setDuration(&settings.Deadline, cfg.Trade.Deadline, "config trade.deadline"); err != nil {
		return err
	}
	if err := setDuration(&settings.QuoteDebounce, cfg.Trade.QuoteDebounce, "config trade.quote_debounce"); err != nil {
		return err
	}

	if err := setDuration(&settings.ReceiptPollInterval, cfg.Execution.PollInterval, "config execution.poll_interval"); err != nil {
		return err
	}
	if err := setDuration(&settings.ReceiptTimeout, cfg.Execution.ReceiptTimeout, "config execution.receipt_timeout"); err != nil {
		return err
	}
	if cfg.Execution.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	setString(&settings.MaxFeeGwei, cfg.Execution.MaxFeeGwei)
	setString(&settings.MaxPriorityFeeGwei, cfg.Execution.MaxPriorityFeeGwei)
	setString(&settings.KeySource, cfg.Execution.KeySource)

	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("DEX_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("DEX_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Strict = b
		}
	}
	if v := os.Getenv("DEX_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("DEX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("DEX_MAX_STALE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.MaxStale = d
		}
	}
	if v := os.Getenv("DEX_NO_STALE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.NoStale = b
		}
	}
	if v := os.Getenv("DEX_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	setString(&settings.CachePath, os.Getenv("DEX_CACHE_PATH"))
	setString(&settings.CacheLockPath, os.Getenv("DEX_CACHE_LOCK_PATH"))
	setString(&settings.JournalPath, os.Getenv("DEX_JOURNAL_PATH"))
	setString(&settings.JournalLockPath, os.Getenv("DEX_JOURNAL_LOCK_PATH"))
	setString(&settings.Chain, os.Getenv("DEX_CHAIN"))
	setString(&settings.RPCURL, os.Getenv("DEX_RPC_URL"))
	setString(&settings.PoolManager, os.Getenv("DEX_POOL_MANAGER"))
	setString(&settings.PositionManager, os.Getenv("DEX_POSITION_MANAGER"))
	setString(&settings.SwapRouter, os.Getenv("DEX_SWAP_ROUTER"))
	setString(&settings.SubgraphURL, os.Getenv("DEX_SUBGRAPH_URL"))
	setString(&settings.SubgraphAPIKey, os.Getenv("DEX_SUBGRAPH_API_KEY"))
	setString(&settings.LogLevel, os.Getenv("DEX_LOG_LEVEL"))
	setString(&settings.MetricsFile, os.Getenv("DEX_METRICS_FILE"))
	setString(&settings.KeySource, os.Getenv("DEX_KEY_SOURCE"))
	setString(&settings.MaxFeeGwei, os.Getenv("DEX_MAX_FEE_GWEI"))
	setString(&settings.MaxPriorityFeeGwei, os.Getenv("DEX_MAX_PRIORITY_FEE_GWEI"))
	if v := os.Getenv("DEX_SLIPPAGE_BPS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse DEX_SLIPPAGE_BPS: %w", err)
		}
		settings.SlippageBps = n
	}
	if v := os.Getenv("DEX_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Deadline = d
		}
	}
	if v := os.Getenv("DEX_QUOTE_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.QuoteDebounce = d
		}
	}
	if v := os.Getenv("DEX_RECEIPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ReceiptTimeout = d
		}
	}
	if v := os.Getenv("DEX_GAS_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.GasMultiplier = f
		}
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}

	if flags.Strict {
		settings.Strict = true
	}
	if err := setDuration(&settings.Timeout, flags.Timeout, "parse --timeout"); err != nil {
		return err
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if err := setDuration(&settings.MaxStale, flags.MaxStale, "parse --max-stale"); err != nil {
		return err
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	setString(&settings.Chain, flags.Chain)
	setString(&settings.RPCURL, flags.RPCURL)
	setString(&settings.SubgraphURL, flags.SubgraphURL)
	if flags.SlippageBps >= 0 {
		settings.SlippageBps = flags.SlippageBps
	}
	if err := setDuration(&settings.Deadline, flags.Deadline, "parse --deadline"); err != nil {
		return err
	}
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.MetricsFile, flags.MetricsFile)
	setString(&settings.KeySource, flags.KeySource)

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, label string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
