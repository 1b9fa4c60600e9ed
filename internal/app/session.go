package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ggonzalez94/dex-cli/internal/builder"
	"github.com/ggonzalez94/dex-cli/internal/cache"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/httpx"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"github.com/ggonzalez94/dex-cli/internal/lifecycle"
	"github.com/ggonzalez94/dex-cli/internal/model"
	"github.com/ggonzalez94/dex-cli/internal/quote"
	"github.com/ggonzalez94/dex-cli/internal/registry"
	"github.com/ggonzalez94/dex-cli/internal/signer"
	"github.com/ggonzalez94/dex-cli/internal/subgraph"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const tokenMetadataTTL = 24 * time.Hour

// chainClient dials the configured RPC endpoint once per process. A missing
// signing key is not an error here: read commands work without one and
// mutating commands fail later with a not-connected error.
func (s *runtimeState) chainClient(ctx context.Context) (chain.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	contracts, err := registry.ResolveContracts(s.chain.EVMChainID, registry.DEXContracts{
		PoolManager:     s.settings.PoolManager,
		PositionManager: s.settings.PositionManager,
		SwapRouter:      s.settings.SwapRouter,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve dex contracts", err)
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.chain.EVMChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	opts := chain.DefaultOptions()
	opts.PollInterval = s.settings.ReceiptPollInterval
	opts.ReceiptTimeout = s.settings.ReceiptTimeout
	opts.GasMultiplier = s.settings.GasMultiplier
	opts.MaxFeeGwei = s.settings.MaxFeeGwei
	opts.MaxPriorityFeeGwei = s.settings.MaxPriorityFeeGwei

	client, release, err := s.runner.dial(ctx, rpcURL, contracts, s.walletSession(), opts, s.log)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	s.client = client
	s.closeClient = release
	s.log.Debug("chain client ready", zap.String("chain", s.chain.CAIP2), zap.String("rpc", rpcURL))
	return client, nil
}

func (s *runtimeState) walletSession() *signer.Session {
	if s.session != nil {
		return s.session
	}
	s.session = signer.NewSession(nil)
	if s.runner.loadSigner == nil {
		return s.session
	}
	sg, err := s.runner.loadSigner(s.settings.KeySource)
	if err != nil {
		s.log.Debug("no signing key loaded", zap.String("key_source", s.settings.KeySource), zap.Error(err))
		return s.session
	}
	s.session.Connect(sg)
	return s.session
}

func (s *runtimeState) lifecycleMetrics() *lifecycle.Metrics {
	if s.metrics == nil {
		s.registry = prometheus.NewRegistry()
		s.metrics = lifecycle.NewMetrics(s.registry)
	}
	return s.metrics
}

func (s *runtimeState) quoteEngine() *quote.Engine {
	if s.engine == nil {
		s.engine = quote.NewEngine(s.log)
	}
	return s.engine
}

// controller builds the lifecycle controller around the chain client. The
// CLI runs one action per process, so the controller is closed as soon as an
// action succeeds.
func (s *runtimeState) controller(ctx context.Context) (*lifecycle.Controller, error) {
	if s.ctrl != nil {
		return s.ctrl, nil
	}
	client, err := s.chainClient(ctx)
	if err != nil {
		return nil, err
	}
	b, err := builder.New(builder.Policy{
		SlippageBps: s.settings.SlippageBps,
		Deadline:    s.settings.Deadline,
	})
	if err != nil {
		return nil, err
	}
	cfg := lifecycle.Config{
		Client:   client,
		Account:  s.walletSession(),
		Engine:   s.quoteEngine(),
		Builder:  b,
		Notifier: newLogNotifier(s.log),
		Metrics:  s.lifecycleMetrics(),
		Logger:   s.log,
		ChainID:  s.chain.CAIP2,
		Debounce: s.settings.QuoteDebounce,
	}
	if s.journal != nil {
		cfg.Journal = s.journal
	}
	var ctrl *lifecycle.Controller
	cfg.OnClose = func() {
		s.log.Debug("action finished; closing controller")
		ctrl.Close()
	}
	ctrl = lifecycle.New(cfg)
	s.ctrl = ctrl
	return ctrl, nil
}

func (s *runtimeState) account() (string, error) {
	addr, ok := s.walletSession().Current()
	if !ok {
		return "", clierr.New(clierr.CodeNotConnected, "no signing key configured; set DEX_PRIVATE_KEY or --key-source")
	}
	return addr.Hex(), nil
}

func (s *runtimeState) indexerClient() (*subgraph.Client, error) {
	if s.indexer != nil {
		return s.indexer, nil
	}
	endpoint := s.settings.SubgraphURL
	if strings.TrimSpace(endpoint) == "" {
		if v, ok := registry.SubgraphURL(s.chain.EVMChainID); ok {
			endpoint = v
		}
	}
	client, err := subgraph.New(httpx.New(s.settings.Timeout, s.settings.Retries, s.log), endpoint, s.settings.SubgraphAPIKey)
	if err != nil {
		return nil, err
	}
	s.indexer = client
	return client, nil
}

// resolveToken turns a symbol, address or CAIP-19 id into a dex.Token.
// Tokens missing from the built-in registry are read from chain once and
// cached.
func (s *runtimeState) resolveToken(ctx context.Context, input string) (dex.Token, cache.Status, error) {
	asset, err := id.ParseAsset(input, s.chain)
	if err != nil {
		return dex.Token{}, cache.Status{Status: "bypass"}, err
	}
	if asset.Known() {
		return dex.Token{
			Address:  asset.Address,
			Symbol:   asset.Symbol,
			Name:     asset.Name,
			Decimals: asset.Decimals,
		}, cache.Status{Status: "bypass"}, nil
	}
	client, err := s.chainClient(ctx)
	if err != nil {
		return dex.Token{}, cache.Status{Status: "bypass"}, err
	}
	key := cache.Key("token_metadata", map[string]string{"chain": s.chain.CAIP2, "address": strings.ToLower(asset.Address)})
	token, status, err := cache.Fetch(ctx, s.cache, s.cachePolicy(), key, tokenMetadataTTL, func(ctx context.Context) (dex.Token, error) {
		t, err := client.TokenMetadata(ctx, dex.Token{Address: asset.Address}.Addr())
		if err != nil {
			return dex.Token{}, quote.Classify(fmt.Errorf("read token metadata for %s: %w", asset.Address, err))
		}
		return t, nil
	})
	if err != nil {
		return dex.Token{}, status, err
	}
	token.Address = asset.Address
	token.Balance = nil
	return token, status, nil
}

// resolvePair resolves two tokens and reports the weakest cache status of
// the two lookups.
func (s *runtimeState) resolvePair(ctx context.Context, a, b string) (dex.Token, dex.Token, model.CacheStatus, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return dex.Token{}, dex.Token{}, cacheMetaBypass(), clierr.New(clierr.CodeUsage, "both tokens are required")
	}
	tokenA, statusA, err := s.resolveToken(ctx, a)
	if err != nil {
		return dex.Token{}, dex.Token{}, cacheMetaBypass(), err
	}
	tokenB, statusB, err := s.resolveToken(ctx, b)
	if err != nil {
		return dex.Token{}, dex.Token{}, cacheMetaBypass(), err
	}
	status := statusA
	if rank(statusB) > rank(statusA) {
		status = statusB
	}
	return tokenA, tokenB, cacheMeta(status), nil
}

func rank(status cache.Status) int {
	switch status.Status {
	case "stale":
		return 4
	case "miss":
		return 3
	case "write":
		return 2
	case "hit":
		return 1
	default:
		return 0
	}
}

func tokenInfo(t dex.Token) model.TokenInfo {
	return model.TokenInfo{
		Address:  t.Address,
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: t.Decimals,
		Known:    t.Symbol != "",
	}
}
