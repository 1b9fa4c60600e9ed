package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ggonzalez94/dex-cli/internal/cache"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/config"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"github.com/ggonzalez94/dex-cli/internal/journal"
	"github.com/ggonzalez94/dex-cli/internal/lifecycle"
	"github.com/ggonzalez94/dex-cli/internal/logging"
	"github.com/ggonzalez94/dex-cli/internal/model"
	"github.com/ggonzalez94/dex-cli/internal/out"
	"github.com/ggonzalez94/dex-cli/internal/policy"
	"github.com/ggonzalez94/dex-cli/internal/quote"
	"github.com/ggonzalez94/dex-cli/internal/registry"
	"github.com/ggonzalez94/dex-cli/internal/schema"
	"github.com/ggonzalez94/dex-cli/internal/signer"
	"github.com/ggonzalez94/dex-cli/internal/subgraph"
	"github.com/ggonzalez94/dex-cli/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dialFunc connects the chain collaborator. The returned func releases it.
type dialFunc func(ctx context.Context, rpcURL string, contracts registry.DEXContracts, wallet chain.Wallet, opts chain.Options, log *zap.Logger) (chain.Client, func(), error)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	logOut io.Writer
	now    func() time.Time

	dial       dialFunc
	loadSigner func(source string) (signer.Signer, error)
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout:     stdout,
		stderr:     stderr,
		logOut:     stderr,
		now:        time.Now,
		dial:       dialEVM,
		loadSigner: loadLocalSigner,
	}
}

func dialEVM(ctx context.Context, rpcURL string, contracts registry.DEXContracts, wallet chain.Wallet, opts chain.Options, log *zap.Logger) (chain.Client, func(), error) {
	evm, err := chain.Dial(ctx, rpcURL, contracts, wallet, opts, log)
	if err != nil {
		return nil, nil, err
	}
	return evm, evm.Close, nil
}

func loadLocalSigner(source string) (signer.Signer, error) {
	sg, err := signer.NewLocalSignerFromEnv(source)
	if err != nil {
		return nil, err
	}
	return sg, nil
}

type runtimeState struct {
	runner       *Runner
	flags        config.GlobalFlags
	settings     config.Settings
	root         *cobra.Command
	lastCommand  string
	lastWarnings []string
	lastPartial  bool

	log      *zap.Logger
	chain    id.Chain
	cache    *cache.Store
	journal  *journal.Store
	registry *prometheus.Registry
	metrics  *lifecycle.Metrics

	client      chain.Client
	closeClient func()
	session     *signer.Session
	engine      *quote.Engine
	ctrl        *lifecycle.Controller
	indexer     *subgraph.Client
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: zap.NewNop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	state.shutdown()
	if err == nil {
		return 0
	}
	state.renderError("", err, state.lastWarnings, state.lastPartial)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Agent-first swap and liquidity CLI for a concentrated-liquidity DEX",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			log, err := logging.NewWriter(settings.LogLevel, s.runner.logOut)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.log = log

			if shouldResolveChain(path) {
				chainInfo, err := id.ParseChain(settings.Chain)
				if err != nil {
					return err
				}
				s.chain = chainInfo
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				store, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = store
			}
			if shouldOpenJournal(path) && s.journal == nil {
				store, err := journal.Open(settings.JournalPath, settings.JournalLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open action journal", err)
				}
				s.journal = store
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.BoolVar(&s.flags.Strict, "strict", false, "Fail on partial results")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Request timeout for reads")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per indexer request")
	pf.StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	pf.BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cache entries")
	pf.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.Chain, "chain", "", "Chain name or id (default sepolia)")
	pf.StringVar(&s.flags.RPCURL, "rpc-url", "", "JSON-RPC endpoint")
	pf.StringVar(&s.flags.SubgraphURL, "subgraph-url", "", "Indexing service GraphQL endpoint")
	pf.Int64Var(&s.flags.SlippageBps, "slippage-bps", -1, "Slippage tolerance in basis points (default 50)")
	pf.StringVar(&s.flags.Deadline, "deadline", "", "Transaction deadline window (default 1h)")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level for stderr diagnostics (debug|info|warn|error)")
	pf.StringVar(&s.flags.MetricsFile, "metrics-file", "", "Write Prometheus text metrics to this file on exit")
	pf.StringVar(&s.flags.KeySource, "key-source", "", "Signing key source (auto|env|file|keystore)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newPoolsCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newPositionsCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newExploreCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), false)
		},
	}
}

// shutdown releases everything the command opened, in reverse order.
func (s *runtimeState) shutdown() {
	if s.ctrl != nil {
		s.ctrl.Close()
	}
	if s.closeClient != nil {
		s.closeClient()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.registry != nil && strings.TrimSpace(s.settings.MetricsFile) != "" {
		if err := prometheus.WriteToTextfile(s.settings.MetricsFile, s.registry); err != nil {
			s.log.Warn("write metrics file", zap.String("path", s.settings.MetricsFile), zap.Error(err))
		}
	}
	_ = s.log.Sync()
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			ChainID:   s.chain.CAIP2,
			Cache:     cacheStatus,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		typ = clierr.TypeOf(cErr.Code)
		message = errorMessage(cErr)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			ChainID:   s.chain.CAIP2,
			Cache:     cacheMetaBypass(),
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// errorMessage keeps raw chain and wallet text out of transaction failures;
// CLI plumbing errors keep their cause because it is the actionable part.
func errorMessage(cErr *clierr.Error) string {
	if cErr.Code >= clierr.CodeNotConnected {
		return clierr.UserMessage(cErr)
	}
	if cErr.Cause != nil {
		return fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
	}
	return cErr.Message
}

func (s *runtimeState) readContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.settings.Timeout)
}

func (s *runtimeState) cachePolicy() cache.Policy {
	return cache.Policy{
		Enabled:  s.settings.CacheEnabled && s.cache != nil,
		MaxStale: s.settings.MaxStale,
		NoStale:  s.settings.NoStale,
	}
}

func cacheMeta(status cache.Status) model.CacheStatus {
	return model.CacheStatus{Status: status.Status, AgeMS: status.Age.Milliseconds(), Stale: status.Stale}
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if norm := strings.TrimSpace(part); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func shouldResolveChain(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "schema":
		return false
	default:
		return true
	}
}

// Only explore listings and token metadata lookups go through the cache.
func shouldOpenCache(commandPath string) bool {
	path := normalizeCommandPath(commandPath)
	if strings.HasPrefix(path, "explore ") {
		return true
	}
	switch path {
	case "tokens balance", "pools list", "pools find", "pools create", "swap quote", "swap exec", "positions add":
		return true
	default:
		return false
	}
}

func shouldOpenJournal(commandPath string) bool {
	path := normalizeCommandPath(commandPath)
	return policy.IsMutating(path) || strings.HasPrefix(path, "actions ")
}
