package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/config"
	"github.com/rustyeddy/cryptobot/journal"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/rustyeddy/cryptobot/pkg/id"
	"github.com/rustyeddy/cryptobot/predict"
	"github.com/rustyeddy/cryptobot/risk"
	"github.com/rustyeddy/cryptobot/signal"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Notification events.
const (
	EventFill        = "fill"
	EventCancel      = "cancel"
	EventFailure     = "failure"
	EventPersistence = "persistence"
	EventCycle       = "cycle"
)

// Locker guards against two processes trading the same account at once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Backuper copies the state files somewhere off the box.
type Backuper interface {
	Backup(ctx context.Context, files []string) error
}

type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Deps are the collaborators of a Trader. Gateway, Predictor and Store are
// required.
type Deps struct {
	Gateway   broker.Gateway
	Predictor predict.Predictor
	Store     *state.Store
	Journal   journal.Journal
	Locker    Locker
	Backup    Backuper
	Notifier  Notifier
	Logger    *slog.Logger
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
	IDs       *id.Generator
}

// Trader runs trading cycles for the configured symbols.
type Trader struct {
	cfg       *config.Config
	gw        broker.Gateway
	predictor predict.Predictor
	store     *state.Store
	book      *state.Book
	orders    *Manager
	journal   journal.Journal
	locker    Locker
	backup    Backuper
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewTrader loads the persisted state and creates a closed position for any
// configured symbol that has none.
func NewTrader(cfg *config.Config, d Deps) (*Trader, error) {
	if d.Gateway == nil || d.Predictor == nil || d.Store == nil {
		return nil, errors.New("trader: gateway, predictor and store are required")
	}
	book, err := d.Store.LoadBook()
	if err != nil {
		return nil, fmt.Errorf("%w: load state: %w", ErrPersistenceFailure, err)
	}
	book.EnsureSymbols(cfg.Cryptocurrencies)

	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = Sleep
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Trader{
		cfg:       cfg,
		gw:        d.Gateway,
		predictor: d.Predictor,
		store:     d.Store,
		book:      book,
		journal:   d.Journal,
		locker:    d.Locker,
		backup:    d.Backup,
		notifier:  d.Notifier,
		logger:    logger.With(slog.String("component", "trader")),
		now:       d.Now,
		sleep:     d.Sleep,
	}
	t.orders = NewManager(d.Gateway, book, ManagerConfig{
		Cooldown:      cfg.Cooldown(),
		PollAttempts:  cfg.FillPollAttempts,
		PollDelay:     cfg.PollDelay(),
		SubmitTimeout: cfg.Timeout(),
		Levels:        cfg.Levels,
		Persist:       func() error { return d.Store.SaveBook(book) },
		Now:           d.Now,
		Sleep:         d.Sleep,
		IDs:           d.IDs,
		Logger:        logger,
		Observer:      t.observe,
	})
	return t, nil
}

// Book exposes the in-memory state.
func (t *Trader) Book() *state.Book { return t.book }

// Orders exposes the lifecycle manager.
func (t *Trader) Orders() *Manager { return t.orders }

func (t *Trader) observe(ctx context.Context, e state.Entry) {
	if t.journal != nil {
		if err := t.journal.RecordOrder(journal.FromEntry(e)); err != nil {
			t.logger.Warn("journal order failed", slog.String("log_name", e.LogName), slog.Any("err", err))
		}
	}

	var event, title string
	switch e.Status {
	case state.Filled:
		event = EventFill
		title = fmt.Sprintf("%s %s filled", e.Order.Side, e.Symbol())
	case state.Cancelled:
		event = EventCancel
		title = fmt.Sprintf("%s %s cancelled", e.Order.Side, e.Symbol())
	case state.Failed:
		event = EventFailure
		title = fmt.Sprintf("%s %s failed", e.Order.Side, e.Symbol())
	default:
		return
	}
	t.notify(ctx, event, title, describe(e))
}

func describe(e state.Entry) string {
	msg := fmt.Sprintf("%s size=%s limit=%s", e.LogName, e.Order.Size, e.Order.LimitPrice)
	if e.Fill != nil {
		msg += fmt.Sprintf(" fill=%s@%s", e.Fill.Size, e.Fill.Price)
	}
	if e.Error != "" {
		msg += " error=" + e.Error
	}
	return msg
}

func (t *Trader) notify(ctx context.Context, event, title, message string) {
	if t.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.Timeout())
	defer cancel()
	if err := t.notifier.Notify(nctx, event, title, message); err != nil {
		t.logger.Warn("notify failed", slog.String("event", event), slog.Any("err", err))
	}
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	Start     time.Time
	Balance   decimal.Decimal
	Symbols   int
	Submitted int
	Filled    int
	Cancelled int
	Failed    int
	Rejected  int
	// SymbolErrors holds per-symbol failures; they do not fail the cycle.
	SymbolErrors map[string]error
}

func (r *CycleResult) count(e state.Entry) {
	switch e.Status {
	case state.Filled:
		r.Filled++
	case state.Cancelled:
		r.Cancelled++
	case state.Failed:
		r.Failed++
	case state.Rejected:
		r.Rejected++
	}
}

// RunCycle runs one trading cycle. A missing balance aborts the cycle
// before anything is traded. Errors for a single symbol are logged and
// collected; the cycle moves on to the next symbol. Shutdown is honoured
// between symbols and state is saved on every path that reaches trading.
func (t *Trader) RunCycle(ctx context.Context) (res CycleResult, err error) {
	res = CycleResult{Start: t.now().UTC(), SymbolErrors: make(map[string]error)}
	log := t.logger.With(slog.Time("cycle", res.Start))

	if t.locker != nil {
		release, lerr := t.locker.Acquire(ctx, t.cfg.Lock.Key, t.cfg.LockTTL())
		if lerr != nil {
			return res, fmt.Errorf("acquire cycle lock: %w", lerr)
		}
		defer release()
	}

	defer func() { t.finish(ctx, &res, err) }()

	bal, berr := t.gw.Balance(ctx)
	if berr != nil {
		return res, fmt.Errorf("%w: balance: %w", ErrGatewayUnavailable, berr)
	}
	res.Balance = bal
	log.Info("cycle started", slog.String("balance", bal.StringFixed(2)), slog.Int("symbols", len(t.cfg.Cryptocurrencies)))

	if rerr := t.orders.Reconcile(ctx); rerr != nil {
		log.Warn("reconcile left orders unresolved", slog.Any("err", rerr))
	}

	var submitted []state.Entry
	for _, sym := range t.cfg.Cryptocurrencies {
		if ctx.Err() != nil {
			log.Warn("shutdown requested, skipping remaining symbols", slog.String("next", sym))
			break
		}
		res.Symbols++

		e, serr := t.tradeSymbol(ctx, sym, bal)
		if e != nil {
			switch e.Status {
			case state.Submitted:
				submitted = append(submitted, *e)
				res.Submitted++
				if e.Order.Side == broker.Buy {
					bal = bal.Sub(risk.Notional(e.Order.Size, e.Order.LimitPrice))
				}
			default:
				res.count(*e)
			}
		}
		if serr != nil {
			res.SymbolErrors[sym] = serr
			t.logSymbolError(log, sym, serr)
		}
	}

	final, ferr := t.orders.AwaitFills(ctx, submitted)
	for _, e := range final {
		res.count(e)
	}
	if ferr != nil {
		log.Warn("orders cancelled or left open", slog.Any("err", ferr))
	}

	if serr := t.store.SaveBook(t.book); serr != nil {
		err = fmt.Errorf("%w: %w", ErrPersistenceFailure, serr)
		log.Error("state not saved", slog.Any("err", err))
		t.notify(ctx, EventPersistence, "state not saved", err.Error())
		return res, err
	}
	return res, nil
}

func (t *Trader) logSymbolError(log *slog.Logger, sym string, err error) {
	attrs := []any{slog.String("symbol", sym), slog.Any("err", err)}
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		log.Info("symbol skipped", attrs...)
	case errors.Is(err, ErrMarketDataUnavailable), errors.Is(err, ErrOrderSubmissionFailed):
		log.Warn("symbol failed", attrs...)
	default:
		log.Error("symbol failed", attrs...)
	}
}

// finish journals the cycle, backs up the state files and sends the cycle
// summary. Failures here are logged only.
func (t *Trader) finish(ctx context.Context, res *CycleResult, err error) {
	rec := journal.CycleRecord{
		Time:      res.Start,
		Balance:   res.Balance,
		Symbols:   res.Symbols,
		Submitted: res.Submitted,
		Filled:    res.Filled,
		Cancelled: res.Cancelled,
		Failed:    res.Failed,
		Rejected:  res.Rejected,
		Duration:  t.now().UTC().Sub(res.Start),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if t.journal != nil {
		if jerr := t.journal.RecordCycle(rec); jerr != nil {
			t.logger.Warn("journal cycle failed", slog.Any("err", jerr))
		}
	}

	if t.backup != nil && !errors.Is(err, ErrPersistenceFailure) {
		files, ferr := t.store.Files()
		if ferr == nil && len(files) > 0 {
			bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.Timeout()*4)
			ferr = t.backup.Backup(bctx, files)
			cancel()
		}
		if ferr != nil {
			t.logger.Warn("state backup failed", slog.Any("err", ferr))
		}
	}

	msg := fmt.Sprintf("balance=%s symbols=%d submitted=%d filled=%d cancelled=%d failed=%d rejected=%d",
		res.Balance.StringFixed(2), res.Symbols, res.Submitted, res.Filled, res.Cancelled, res.Failed, res.Rejected)
	if err != nil {
		msg += " error=" + err.Error()
	}
	t.notify(ctx, EventCycle, "cycle finished", msg)
	t.logger.Info("cycle finished",
		slog.Int("submitted", res.Submitted),
		slog.Int("filled", res.Filled),
		slog.Int("cancelled", res.Cancelled),
		slog.Int("failed", res.Failed),
		slog.Int("rejected", res.Rejected),
		slog.Duration("took", rec.Duration),
	)
}

// tradeSymbol runs the signal pipeline for one symbol. It returns the entry
// it logged, if any.
func (t *Trader) tradeSymbol(ctx context.Context, sym string, bal decimal.Decimal) (*state.Entry, error) {
	snap, err := t.Snapshot(ctx, sym)
	if err != nil {
		return nil, err
	}

	pred, err := t.predictor.Predict(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", sym, err)
	}

	price := snap.Mid()
	pos := t.book.Position(sym)
	dec := signal.Evaluate(pred, pos, price)
	lv := t.cfg.Levels(price)

	t.logger.Info("signal",
		slog.String("symbol", sym),
		slog.Int("prediction", pred),
		slog.String("price", price.String()),
		slog.String("position", pos.String()),
		slog.String("signal", dec.Signal.String()),
		slog.String("reason", dec.Reason),
	)

	side, ok := dec.Signal.Side()
	if !ok {
		if signal.Ratchet(&pos, price, lv, snap.PriceIncrement, t.now().UTC()) {
			t.book.SetPosition(sym, pos)
			t.logger.Info("exit levels raised",
				slog.String("symbol", sym),
				slog.String("target", pos.ProfitTarget.String()),
				slog.String("stop", pos.StopLossPrice.String()),
			)
		}
		return nil, nil
	}

	policy := t.cfg.Policy(price)
	size := risk.Size(risk.SizeInputs{
		Policy:        policy,
		Balance:       bal,
		Price:         price,
		SizeIncrement: snap.SizeIncrement,
		Open:          pos.IsOpen(),
		OpenSize:      pos.Size,
	})
	if size.IsZero() {
		reason := "size rounds to zero"
		if bal.LessThan(policy.MaxTradeAmount) {
			reason = fmt.Sprintf("balance %s below max trade amount %s", bal.StringFixed(2), policy.MaxTradeAmount.StringFixed(2))
		}
		e := t.orders.Reject(ctx, sym, side, price, reason)
		return &e, fmt.Errorf("%w: %s: %s", ErrInsufficientFunds, sym, reason)
	}

	check := risk.Evaluate(risk.Intent{Symbol: sym, Side: side, Size: size, Price: price}, bal)
	if !check.Allowed {
		e := t.orders.Reject(ctx, sym, side, price, check.String())
		if check.Has(risk.CodeInsufficientFunds) {
			return &e, fmt.Errorf("%w: %s: %s", ErrInsufficientFunds, sym, check)
		}
		return &e, fmt.Errorf("order check %s: %s", sym, check)
	}

	e, err := t.orders.Submit(ctx, Request{
		Symbol:      sym,
		Side:        side,
		Size:        size,
		Price:       price,
		PricePlaces: snap.PriceIncrement,
		Levels:      lv,
	})
	if e.LogName == "" {
		return nil, err
	}
	return &e, err
}

// Snapshot fetches candles, the top of book and the product increments for
// one symbol concurrently.
func (t *Trader) Snapshot(ctx context.Context, sym string) (market.Snapshot, error) {
	gran, err := market.ParseGranularity(t.cfg.Granularity)
	if err != nil {
		return market.Snapshot{}, err
	}
	end := t.now().UTC()
	start := end.Add(-t.cfg.Lookback())

	snap := market.Snapshot{Symbol: sym}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cs, err := t.gw.Candles(gctx, sym, start, end, gran)
		if err != nil {
			return fmt.Errorf("candles: %w", err)
		}
		snap.Candles = cs
		return nil
	})
	g.Go(func() error {
		q, err := t.gw.BestBidAsk(gctx, sym)
		if err != nil {
			return fmt.Errorf("best bid/ask: %w", err)
		}
		snap.Quote = q
		return nil
	})
	g.Go(func() error {
		n, err := t.gw.SizeIncrement(gctx, sym)
		if err != nil {
			return fmt.Errorf("size increment: %w", err)
		}
		snap.SizeIncrement = n
		return nil
	})
	g.Go(func() error {
		n, err := t.gw.PriceIncrement(gctx, sym)
		if err != nil {
			return fmt.Errorf("price increment: %w", err)
		}
		snap.PriceIncrement = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return market.Snapshot{}, fmt.Errorf("%w: %s: %w", ErrMarketDataUnavailable, sym, err)
	}

	if len(snap.Candles) == 0 {
		return market.Snapshot{}, fmt.Errorf("%w: %s: no candles", ErrMarketDataUnavailable, sym)
	}
	if !snap.Quote.Valid() {
		return market.Snapshot{}, fmt.Errorf("%w: %s: no usable quote", ErrMarketDataUnavailable, sym)
	}
	return snap, nil
}

// Run runs a cycle immediately and then one every trade interval, measured
// start to start, until ctx is cancelled. A failed cycle is logged and the
// next one runs on schedule.
func (t *Trader) Run(ctx context.Context) error {
	interval := t.cfg.Interval()
	t.logger.Info("trader started",
		slog.Any("symbols", t.cfg.Cryptocurrencies),
		slog.Duration("interval", interval),
	)

	for {
		start := t.now()
		if _, err := t.RunCycle(ctx); err != nil {
			t.logger.Error("cycle failed", slog.Any("err", err))
		}
		wait := interval - t.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		if err := t.sleep(ctx, wait); err != nil {
			t.logger.Info("trader stopped")
			return nil
		}
	}
}
