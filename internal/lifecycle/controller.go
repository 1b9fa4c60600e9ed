package lifecycle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ggonzalez94/dex-cli/internal/builder"
	"github.com/ggonzalez94/dex-cli/internal/chain"
	"github.com/ggonzalez94/dex-cli/internal/dex"
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/id"
	"github.com/ggonzalez94/dex-cli/internal/journal"
	"github.com/ggonzalez94/dex-cli/internal/quote"
	"github.com/ggonzalez94/dex-cli/internal/signer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxRequotes bounds how often a swap re-quotes because the inputs
// moved under it before giving up with a stale-data error.
const DefaultMaxRequotes = 2

// Recorder persists terminal action records.
type Recorder interface {
	Save(record journal.Record) error
}

type Config struct {
	Client   chain.Client
	Account  signer.Account
	Engine   *quote.Engine
	Builder  *builder.Builder
	Notifier Notifier
	Journal  Recorder
	Metrics  *Metrics
	Logger   *zap.Logger
	ChainID  string

	Debounce    time.Duration
	MaxRequotes int
	// OnClose runs after every successful action; the CLI uses it to end the
	// interactive session.
	OnClose func()
}

// Form is the swap input state the controller owns. Version increases on
// every input change and is what quotes are checked against.
type Form struct {
	From        dex.Token
	To          dex.Token
	Amount      string
	ExactOutput bool
	Counter     string
	Version     uint64
	Quote       *quote.Quote
}

// ScaledAmount converts the typed amount with the decimals of the token it
// is denominated in: the output token for exact-output swaps, the input
// token otherwise.
func (f Form) ScaledAmount() (*big.Int, error) {
	token := f.From
	if f.ExactOutput {
		token = f.To
	}
	amount, err := id.ParseUnits(f.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "enter an amount greater than zero")
	}
	return amount, nil
}

type Controller struct {
	client      chain.Client
	account     signer.Account
	engine      *quote.Engine
	builder     *builder.Builder
	notifier    Notifier
	journal     Recorder
	metrics     *Metrics
	log         *zap.Logger
	chainID     string
	maxRequotes int
	onClose     func()

	debouncer *quote.Debouncer
	base      context.Context
	stop      context.CancelFunc

	mu       sync.Mutex
	form     Form
	quoteGen uint64
	busy     bool
	closed   bool
}

func New(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	engine := cfg.Engine
	if engine == nil {
		engine = quote.NewEngine(log)
	}
	b := cfg.Builder
	if b == nil {
		b, _ = builder.New(builder.DefaultPolicy())
	}
	var notifier Notifier = NopNotifier{}
	if cfg.Notifier != nil {
		notifier = cfg.Notifier
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = quote.DefaultDebounce
	}
	maxRequotes := cfg.MaxRequotes
	if maxRequotes <= 0 {
		maxRequotes = DefaultMaxRequotes
	}
	base, stop := context.WithCancel(context.Background())
	return &Controller{
		client:      cfg.Client,
		account:     cfg.Account,
		engine:      engine,
		builder:     b,
		notifier:    notifier,
		journal:     cfg.Journal,
		metrics:     cfg.Metrics,
		log:         log,
		chainID:     cfg.ChainID,
		maxRequotes: maxRequotes,
		onClose:     cfg.OnClose,
		debouncer:   quote.NewDebouncer(debounce),
		base:        base,
		stop:        stop,
	}
}

// Form returns a snapshot of the current inputs.
func (c *Controller) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.form
	if f.Quote != nil {
		q := *f.Quote
		f.Quote = &q
	}
	return f
}

func (c *Controller) SetTokens(from, to dex.Token) uint64 {
	c.mu.Lock()
	c.form.From, c.form.To = from, to
	v := c.touchLocked()
	form := c.form
	c.mu.Unlock()
	c.scheduleQuote(form)
	return v
}

func (c *Controller) SetExactOutput(exact bool) uint64 {
	c.mu.Lock()
	c.form.ExactOutput = exact
	v := c.touchLocked()
	form := c.form
	c.mu.Unlock()
	c.scheduleQuote(form)
	return v
}

// SetAmount records new user input and arms a debounced re-quote. It returns
// the new input version.
func (c *Controller) SetAmount(amount string) uint64 {
	c.mu.Lock()
	c.form.Amount = strings.TrimSpace(amount)
	v := c.touchLocked()
	form := c.form
	c.mu.Unlock()
	c.scheduleQuote(form)
	return v
}

func (c *Controller) touchLocked() uint64 {
	c.form.Version++
	c.form.Counter = ""
	c.form.Quote = nil
	return c.form.Version
}

func (c *Controller) scheduleQuote(form Form) {
	if c.isClosed() {
		return
	}
	if !form.From.Valid() || !form.To.Valid() || !positive(form.Amount) {
		c.debouncer.Cancel()
		return
	}
	c.debouncer.Schedule(c.base, func(t quote.Ticket) {
		_, _ = c.requestQuote(t.Context(), t.Current)
	})
}

// RequestQuote prices the current inputs now, superseding any pending or
// in-flight quote. The result is applied to the form only if no newer
// request or input change happened meanwhile; otherwise CodeStale is
// returned and nothing is reported.
func (c *Controller) RequestQuote(ctx context.Context) (quote.Quote, error) {
	c.debouncer.Cancel()
	return c.requestQuote(ctx, nil)
}

func (c *Controller) requestQuote(ctx context.Context, current func() bool) (quote.Quote, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return quote.Quote{}, errClosed()
	}
	if current != nil && c.busy {
		c.mu.Unlock()
		return quote.Quote{}, clierr.New(clierr.CodeStale, "quote skipped while an action is in progress")
	}
	c.quoteGen++
	gen := c.quoteGen
	form := c.form
	c.mu.Unlock()

	ctx, cancel := c.scoped(ctx)
	defer cancel()
	q, err := c.quoteForm(ctx, form)
	c.metrics.quote(err)

	c.mu.Lock()
	stale := c.closed || gen != c.quoteGen || form.Version != c.form.Version || (current != nil && (c.busy || !current()))
	if !stale && err == nil {
		c.form.Quote = &q
		c.form.Counter = q.Display()
	}
	c.mu.Unlock()

	if stale {
		c.metrics.stale()
		c.log.Debug("discarding superseded quote", zap.Uint64("version", form.Version), zap.Uint64("generation", gen))
		return quote.Quote{}, clierr.New(clierr.CodeStale, "quote superseded by newer input")
	}
	if err != nil {
		c.notifier.Failure(err)
		return quote.Quote{}, err
	}
	return q, nil
}

func (c *Controller) quoteForm(ctx context.Context, form Form) (quote.Quote, error) {
	if err := checkPair(form); err != nil {
		return quote.Quote{}, err
	}
	amount, err := form.ScaledAmount()
	if err != nil {
		return quote.Quote{}, err
	}
	if form.ExactOutput {
		return c.engine.QuoteExactOutput(ctx, c.client, form.From, form.To, amount)
	}
	return c.engine.QuoteExactInput(ctx, c.client, form.From, form.To, amount)
}

// applyQuote stores q as the form's quote when the inputs are still the ones
// it was taken for.
func (c *Controller) applyQuote(version uint64, q quote.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.form.Version != version {
		return false
	}
	c.quoteGen++
	c.form.Quote = &q
	c.form.Counter = q.Display()
	return true
}

// Validate gates a swap before any chain call: connected account, a complete
// pair, a positive amount and, for exact-input swaps, enough known balance.
func (c *Controller) Validate() error {
	return c.validate(c.Form())
}

func (c *Controller) validate(form Form) error {
	if _, err := signer.Connected(c.account); err != nil {
		return err
	}
	if err := checkPair(form); err != nil {
		return err
	}
	amount, err := form.ScaledAmount()
	if err != nil {
		return err
	}
	if !form.ExactOutput && form.From.Balance != nil && amount.Cmp(form.From.Balance) > 0 {
		return clierr.New(clierr.CodeInsufficientBalance, fmt.Sprintf("amount exceeds %s balance", form.From.Symbol))
	}
	return nil
}

// RefreshBalances reads the account's balance of every token concurrently
// and updates the form tokens it matches.
func (c *Controller) RefreshBalances(ctx context.Context, tokens ...dex.Token) (map[string]*big.Int, error) {
	owner, err := signer.Connected(c.account)
	if err != nil {
		return nil, err
	}
	if c.client == nil {
		return nil, clierr.New(clierr.CodeNotConnected, "no chain client available")
	}
	balances := make([]*big.Int, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		g.Go(func() error {
			balance, err := c.client.BalanceOf(gctx, token.Addr(), owner)
			if err != nil {
				return fmt.Errorf("balance of %s: %w", token, err)
			}
			balances[i] = balance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, quote.Classify(err)
	}
	out := make(map[string]*big.Int, len(tokens))
	for i, token := range tokens {
		out[token.Key()] = balances[i]
	}
	c.mu.Lock()
	if b, ok := out[c.form.From.Key()]; ok && c.form.From.Valid() {
		c.form.From.Balance = new(big.Int).Set(b)
	}
	if b, ok := out[c.form.To.Key()]; ok && c.form.To.Valid() {
		c.form.To.Balance = new(big.Int).Set(b)
	}
	c.mu.Unlock()
	return out, nil
}

func (c *Controller) resetInputs() {
	c.mu.Lock()
	c.form.Amount = ""
	c.touchLocked()
	c.mu.Unlock()
	c.debouncer.Cancel()
}

// Close abandons every flow that has not broadcast a transaction yet: the
// pending debounce is cancelled, in-flight quotes are dropped and their
// contexts cancelled. Transactions already submitted still run to a
// terminal stage.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.quoteGen++
	c.mu.Unlock()
	c.debouncer.Close()
	c.stop()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// scoped derives a context that is also cancelled when the controller closes.
func (c *Controller) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// begin claims the controller for one action. Any pending debounced quote
// is dropped and in-flight ones are superseded; the action quotes for itself.
func (c *Controller) begin(action string) (*run, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errClosed()
	}
	if c.busy {
		c.mu.Unlock()
		return nil, clierr.New(clierr.CodeBlocked, "another action is already in progress")
	}
	c.busy = true
	c.quoteGen++
	c.mu.Unlock()
	c.debouncer.Cancel()
	return newRun(c, action), nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// Busy reports whether a mutating action is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func checkPair(form Form) error {
	if !form.From.Valid() || !form.To.Valid() {
		return clierr.New(clierr.CodeUsage, "select both tokens")
	}
	if form.From.Key() == form.To.Key() {
		return clierr.New(clierr.CodeUsage, "input and output tokens must differ")
	}
	return nil
}

func positive(amount string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	return err == nil && d.IsPositive()
}

func errClosed() error {
	return clierr.New(clierr.CodeBlocked, "controller is closed")
}
