// Package trade runs the trading cycle: it turns signals into limit orders,
// tracks each order until it fills or is cancelled, and keeps positions in
// step with what the brokerage reports.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/pkg/id"
	"github.com/rustyeddy/cryptobot/risk"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
)

// PollResult is the outcome of one fill check.
type PollResult int

const (
	Pending PollResult = iota
	Filled
	Cancelled
)

func (r PollResult) String() string {
	switch r {
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Observer is told about every trade log entry the manager writes.
type Observer func(ctx context.Context, e state.Entry)

type ManagerConfig struct {
	Cooldown      time.Duration // wait before the first fill check
	PollAttempts  int
	PollDelay     time.Duration
	SubmitTimeout time.Duration // bounds submit and cancel calls, which ignore shutdown

	// Levels recomputes exit levels for a fill that finds no open LONG.
	Levels func(price decimal.Decimal) risk.Levels

	// Persist writes the book to disk. It runs after every status change
	// so a crash mid-cycle never loses an order the brokerage has seen.
	Persist func() error

	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	IDs      *id.Generator
	Logger   *slog.Logger
	Observer Observer
}

// Manager owns the order lifecycle. It is driven from a single goroutine.
type Manager struct {
	router broker.OrderRouter
	book   *state.Book
	cfg    ManagerConfig
	logger *slog.Logger
}

func NewManager(router broker.OrderRouter, book *state.Book, cfg ManagerConfig) *Manager {
	if cfg.PollAttempts < 1 {
		cfg.PollAttempts = 1
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.IDs == nil {
		cfg.IDs = id.NewGenerator(cfg.Now)
	}
	if cfg.Levels == nil {
		cfg.Levels = func(decimal.Decimal) risk.Levels { return risk.Levels{} }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		router: router,
		book:   book,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "orders")),
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *Manager) now() time.Time { return m.cfg.Now().UTC() }

func (m *Manager) put(ctx context.Context, e state.Entry) state.Entry {
	e.UpdatedAt = m.now()
	m.book.PutEntry(e)
	if m.cfg.Observer != nil {
		m.cfg.Observer(ctx, e)
	}
	return e
}

// checkpoint persists the book. Failures are logged and wrapped in
// ErrPersistenceFailure.
func (m *Manager) checkpoint() error {
	if m.cfg.Persist == nil {
		return nil
	}
	if err := m.cfg.Persist(); err != nil {
		m.logger.Error("state checkpoint failed", slog.Any("err", err))
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return nil
}

// detached returns a context that survives shutdown but not SubmitTimeout.
func (m *Manager) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SubmitTimeout)
}

// Request is an order the cycle decided to place.
type Request struct {
	Symbol      string
	Side        broker.Side
	Size        decimal.Decimal
	Price       decimal.Decimal // limit price, already rounded
	PricePlaces int32
	Levels      risk.Levels
}

// Submit places a GTC limit order. The entry is logged as pending before the
// call so an interrupted submission is visible after a restart; if that
// entry cannot be persisted the order is not sent. On success the position
// becomes open at the limit price; on failure it is untouched.
func (m *Manager) Submit(ctx context.Context, req Request) (state.Entry, error) {
	now := m.now()
	cid, err := m.cfg.IDs.Next()
	if err != nil {
		return state.Entry{}, fmt.Errorf("%w: %s %s: %w", ErrOrderSubmissionFailed, req.Side, req.Symbol, err)
	}

	e := state.Entry{
		LogName: m.book.UniqueLogName(req.Symbol, state.LogName(req.Symbol, now)),
		Order: state.Order{
			ClientOrderID: cid,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Size:          req.Size,
			LimitPrice:    req.Price,
			SubmitTime:    now,
		},
		Status: state.PendingSubmit,
		Prior:  m.book.Position(req.Symbol),
	}
	e = m.put(ctx, e)

	log := m.logger.With(
		slog.String("symbol", req.Symbol),
		slog.String("client_order_id", cid),
	)

	if err := m.checkpoint(); err != nil {
		e.Status = state.Failed
		e.Error = err.Error()
		e = m.put(ctx, e)
		log.Warn("order not sent, pending entry not persisted", slog.String("side", string(req.Side)))
		return e, fmt.Errorf("%w: %s %s: %w", ErrOrderSubmissionFailed, req.Side, req.Symbol, err)
	}

	sctx, cancel := m.detached(ctx)
	defer cancel()
	ack, err := m.router.SubmitLimitOrder(sctx, broker.LimitOrder{
		ClientOrderID: cid,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Size:          req.Size,
		LimitPrice:    req.Price,
	})
	if err == nil && (!ack.Success || ack.BrokerOrderID == "") {
		reason := ack.FailureReason
		if reason == "" {
			reason = "no order id returned"
		}
		err = errors.New(reason)
	}
	if err != nil {
		e.Status = state.Failed
		e.Error = err.Error()
		e = m.put(ctx, e)
		_ = m.checkpoint()
		log.Warn("order submission failed", slog.String("side", string(req.Side)), slog.Any("err", err))
		return e, fmt.Errorf("%w: %s %s: %w", ErrOrderSubmissionFailed, req.Side, req.Symbol, err)
	}

	e.Order.BrokerOrderID = ack.BrokerOrderID
	e.Status = state.Submitted
	e = m.put(ctx, e)

	target, stop := risk.Targets(req.Side, req.Price, req.Levels, req.PricePlaces)
	dir := state.Long
	if req.Side == broker.Sell {
		dir = state.Flat
	}
	m.book.SetPosition(req.Symbol, state.Position{
		Status:        state.Open,
		Direction:     dir,
		EntryPrice:    req.Price,
		Size:          req.Size,
		ProfitTarget:  target,
		StopLossPrice: stop,
		UpdatedAt:     now,
	})

	log.Info("order submitted",
		slog.String("broker_order_id", ack.BrokerOrderID),
		slog.String("side", string(req.Side)),
		slog.String("size", req.Size.String()),
		slog.String("limit", req.Price.String()),
	)
	// The order is live either way; the caller still has to await it.
	if err := m.checkpoint(); err != nil {
		return e, err
	}
	return e, nil
}

// Reject logs an order the cycle decided against, with zero size.
func (m *Manager) Reject(ctx context.Context, symbol string, side broker.Side, limit decimal.Decimal, reason string) state.Entry {
	now := m.now()
	cid, err := m.cfg.IDs.Next()
	if err != nil {
		cid = ""
	}
	e := state.Entry{
		LogName: m.book.UniqueLogName(symbol, state.LogName(symbol, now)),
		Order: state.Order{
			ClientOrderID: cid,
			Symbol:        symbol,
			Side:          side,
			Size:          decimal.Zero,
			LimitPrice:    limit,
			SubmitTime:    now,
		},
		Status: state.Rejected,
		Error:  reason,
		Prior:  m.book.Position(symbol),
	}
	e = m.put(ctx, e)
	m.logger.Info("order rejected",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("reason", reason),
	)
	return e
}

// Poll checks one submitted order. A fill updates the position; a brokerage
// side cancellation rolls it back. An error leaves the entry pending.
func (m *Manager) Poll(ctx context.Context, e state.Entry) (PollResult, state.Entry, error) {
	st, err := m.router.OrderStatus(ctx, e.Order.BrokerOrderID)
	if err != nil {
		return Pending, e, fmt.Errorf("order status %s: %w", e.Order.BrokerOrderID, err)
	}

	switch st.Status {
	case broker.StatusFilled:
		return Filled, m.markFilled(ctx, e, st.Fill), nil
	case broker.StatusCancelled, broker.StatusExpired, broker.StatusFailed:
		m.logger.Info("order closed by brokerage",
			slog.String("symbol", e.Symbol()),
			slog.String("broker_order_id", e.Order.BrokerOrderID),
			slog.String("status", string(st.Status)),
		)
		return Cancelled, m.markCancelled(ctx, e, st.Fill), nil
	default:
		return Pending, e, nil
	}
}

func (m *Manager) markFilled(ctx context.Context, e state.Entry, f *broker.Fill) state.Entry {
	now := m.now()
	fill := broker.Fill{Size: e.Order.Size, Price: e.Order.LimitPrice, Time: now}
	if f != nil {
		if f.Size.IsPositive() {
			fill.Size = f.Size
		}
		if f.Price.IsPositive() {
			fill.Price = f.Price
		}
		if !f.Time.IsZero() {
			fill.Time = f.Time.UTC()
		}
	}

	e.Status = state.Filled
	e.Fill = &state.FillDetails{Filled: true, Size: fill.Size, Price: fill.Price, Time: fill.Time}
	e = m.put(ctx, e)

	sym := e.Symbol()
	if e.Order.Side == broker.Sell {
		p := state.ClosedPosition()
		p.UpdatedAt = now
		m.book.SetPosition(sym, p)
	} else {
		p := m.book.Position(sym)
		if !p.IsOpen() || p.Direction != state.Long {
			places := int32(0)
			if exp := e.Order.LimitPrice.Exponent(); exp < 0 {
				places = -exp
			}
			p.ProfitTarget, p.StopLossPrice = risk.Targets(broker.Buy, fill.Price, m.cfg.Levels(fill.Price), places)
		}
		p.Status = state.Open
		p.Direction = state.Long
		p.EntryPrice = fill.Price
		p.Size = fill.Size
		p.UpdatedAt = now
		m.book.SetPosition(sym, p)
	}

	_ = m.checkpoint()

	m.logger.Info("order filled",
		slog.String("symbol", sym),
		slog.String("broker_order_id", e.Order.BrokerOrderID),
		slog.String("side", string(e.Order.Side)),
		slog.String("size", fill.Size.String()),
		slog.String("price", fill.Price.String()),
	)
	return e
}

// markCancelled records the cancellation. With no fill the position held
// before the order was submitted is restored. A partial fill is kept: a BUY
// opens LONG at the filled size and price, a SELL leaves LONG with what was
// not sold.
func (m *Manager) markCancelled(ctx context.Context, e state.Entry, f *broker.Fill) state.Entry {
	now := m.now()
	e.Status = state.Cancelled
	e.Cancellation = &state.CancelDetails{Filled: false, Cancelled: true, Time: now}

	sym := e.Symbol()
	if f == nil || !f.Size.IsPositive() {
		e = m.put(ctx, e)
		m.book.SetPosition(sym, e.Prior)
		_ = m.checkpoint()
		return e
	}

	price := f.Price
	if !price.IsPositive() {
		price = e.Order.LimitPrice
	}
	fillTime := now
	if !f.Time.IsZero() {
		fillTime = f.Time.UTC()
	}
	e.Cancellation.Filled = true
	e.Fill = &state.FillDetails{Filled: true, Size: f.Size, Price: price, Time: fillTime}
	e = m.put(ctx, e)

	var p state.Position
	if e.Order.Side == broker.Sell {
		p = e.Prior
		p.Size = p.Size.Sub(f.Size)
		if !p.Size.IsPositive() {
			p = state.ClosedPosition()
		}
	} else {
		places := int32(0)
		if exp := e.Order.LimitPrice.Exponent(); exp < 0 {
			places = -exp
		}
		p = state.Position{Status: state.Open, Direction: state.Long, EntryPrice: price, Size: f.Size}
		p.ProfitTarget, p.StopLossPrice = risk.Targets(broker.Buy, price, m.cfg.Levels(price), places)
	}
	p.UpdatedAt = now
	m.book.SetPosition(sym, p)
	_ = m.checkpoint()

	m.logger.Warn("order cancelled after partial fill",
		slog.String("symbol", sym),
		slog.String("broker_order_id", e.Order.BrokerOrderID),
		slog.String("side", string(e.Order.Side)),
		slog.String("filled", f.Size.String()),
		slog.String("ordered", e.Order.Size.String()),
	)
	return e
}

// AwaitFills waits the cooldown, then checks every submitted order up to
// PollAttempts times with PollDelay between rounds. Orders still open after
// the last round are cancelled and rolled back. If ctx is cancelled the wait
// stops and unresolved orders stay submitted for Reconcile. The returned
// entries are in input order.
func (m *Manager) AwaitFills(ctx context.Context, entries []state.Entry) ([]state.Entry, error) {
	out := append([]state.Entry(nil), entries...)
	var pending []int
	for i, e := range out {
		if e.Status == state.Submitted {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return out, nil
	}

	m.logger.Info("waiting for fills",
		slog.Int("orders", len(pending)),
		slog.Duration("cooldown", m.cfg.Cooldown),
	)
	if err := m.cfg.Sleep(ctx, m.cfg.Cooldown); err != nil {
		return out, err
	}

	for attempt := 1; attempt <= m.cfg.PollAttempts && len(pending) > 0; attempt++ {
		if attempt > 1 {
			if err := m.cfg.Sleep(ctx, m.cfg.PollDelay); err != nil {
				return out, err
			}
		}
		var next []int
		for _, i := range pending {
			res, e, err := m.Poll(ctx, out[i])
			out[i] = e
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				m.logger.Warn("fill check failed",
					slog.String("symbol", e.Symbol()),
					slog.Int("attempt", attempt),
					slog.Any("err", err),
				)
			}
			if res == Pending {
				next = append(next, i)
			}
		}
		pending = next
	}

	var errs []error
	for _, i := range pending {
		e, err := m.expire(ctx, out[i])
		out[i] = e
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}

// expire cancels an order that did not fill in time. If the cancel is not
// confirmed the order is checked once more; one that is still open is left
// submitted.
func (m *Manager) expire(ctx context.Context, e state.Entry) (state.Entry, error) {
	cctx, cancel := m.detached(ctx)
	defer cancel()

	log := m.logger.With(
		slog.String("symbol", e.Symbol()),
		slog.String("broker_order_id", e.Order.BrokerOrderID),
	)

	ok, err := m.router.CancelOrder(cctx, e.Order.BrokerOrderID)
	if err != nil || !ok {
		res, pe, perr := m.Poll(cctx, e)
		if perr == nil && res != Pending {
			return pe, nil
		}
		log.Error("cancel not confirmed, order left open", slog.Any("err", errors.Join(err, perr)))
		return pe, fmt.Errorf("%w: %s order %s could not be cancelled: %w",
			ErrFillTimeout, e.Symbol(), e.Order.BrokerOrderID, errors.Join(err, perr, errors.New("cancel not confirmed")))
	}

	// A confirmed cancel may still have filled in part.
	var fill *broker.Fill
	if st, serr := m.router.OrderStatus(cctx, e.Order.BrokerOrderID); serr == nil {
		if st.Status == broker.StatusFilled {
			return m.markFilled(ctx, e, st.Fill), nil
		}
		fill = st.Fill
	} else {
		log.Warn("status after cancel unavailable, assuming nothing filled", slog.Any("err", serr))
	}
	e = m.markCancelled(ctx, e, fill)
	log.Warn("order cancelled after fill timeout", slog.Int("checks", m.cfg.PollAttempts))
	return e, fmt.Errorf("%w: %s order %s", ErrFillTimeout, e.Symbol(), e.Order.BrokerOrderID)
}

// Reconcile resolves entries left unfinished by a previous run. Submitted
// orders get one fill check and are cancelled if still open; entries that
// never got an acknowledgement are marked failed.
func (m *Manager) Reconcile(ctx context.Context) error {
	for _, e := range m.book.WithStatus(state.PendingSubmit) {
		e.Status = state.Failed
		e.Error = "interrupted before acknowledgement"
		e = m.put(ctx, e)
		m.book.SetPosition(e.Symbol(), e.Prior)
		m.logger.Warn("unacknowledged order marked failed",
			slog.String("symbol", e.Symbol()),
			slog.String("client_order_id", e.Order.ClientOrderID),
		)
	}
	if err := m.checkpoint(); err != nil {
		return err
	}

	var errs []error
	for _, e := range m.book.WithStatus(state.Submitted) {
		if ctx.Err() != nil {
			return errors.Join(append(errs, ctx.Err())...)
		}
		res, pe, err := m.Poll(ctx, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res != Pending {
			continue
		}
		pe, err = m.expire(ctx, pe)
		if pe.Status == state.Submitted {
			errs = append(errs, err)
			continue
		}
		m.logger.Info("stale order resolved",
			slog.String("symbol", pe.Symbol()),
			slog.String("status", string(pe.Status)),
		)
	}
	return errors.Join(errs...)
}
