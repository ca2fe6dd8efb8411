package trade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/config"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/rustyeddy/cryptobot/pkg/id"
	"github.com/rustyeddy/cryptobot/risk"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// clock is advanced only by the sleeper.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// sleeper records requested sleeps and advances the clock instead of
// blocking. hook, when set, runs before each sleep and may fail it.
type sleeper struct {
	mu    sync.Mutex
	clock *clock
	calls []time.Duration
	hook  func(n int) error
}

func (s *sleeper) Sleep(ctx context.Context, dur time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, dur)
	n := len(s.calls)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.clock.mu.Lock()
	s.clock.t = s.clock.t.Add(dur)
	s.clock.mu.Unlock()
	return nil
}

func (s *sleeper) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

var (
	pendingState   = broker.OrderState{Status: broker.StatusOpen}
	cancelledState = broker.OrderState{Status: broker.StatusCancelled}
)

func filledState(size, price string) broker.OrderState {
	return broker.OrderState{
		Status: broker.StatusFilled,
		Fill:   &broker.Fill{Size: d(size), Price: d(price), Time: t0.Add(time.Minute)},
	}
}

// fakeGateway is a scripted brokerage. Order status replies are scripted per
// symbol; the last reply repeats.
type fakeGateway struct {
	mu sync.Mutex

	balance    decimal.Decimal
	balanceErr error
	candles    map[string]market.Candles
	candleErr  map[string]error
	quotes     map[string]market.Quote
	sizeInc    int32
	priceInc   int32

	submitErr error
	rejectAck string
	statuses  map[string][]broker.OrderState
	statusErr error
	cancelOK  bool
	cancelErr error
	// cancelFill is reported by orders after a confirmed cancel.
	cancelFill *broker.Fill

	nextID       int
	orderSymbol  map[string]string
	submitted    []broker.LimitOrder
	submitCtxErr []error
	statusCalls  map[string]int
	cancelled    []string
}

var _ broker.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balance:     d("1000"),
		candles:     make(map[string]market.Candles),
		candleErr:   make(map[string]error),
		quotes:      make(map[string]market.Quote),
		sizeInc:     8,
		priceInc:    2,
		statuses:    make(map[string][]broker.OrderState),
		cancelOK:    true,
		orderSymbol: make(map[string]string),
		statusCalls: make(map[string]int),
	}
}

// market sets a flat candle history and a one-cent spread around price.
func (f *fakeGateway) market(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := d(price)
	cs := make(market.Candles, 30)
	for i := range cs {
		v := p.InexactFloat64()
		cs[i] = market.Candle{Time: t0.AddDate(0, 0, i-30), Open: v, High: v, Low: v, Close: v, Volume: 1}
	}
	f.candles[symbol] = cs
	f.quotes[symbol] = market.Quote{Symbol: symbol, Bid: p.Sub(d("0.01")), Ask: p.Add(d("0.01"))}
}

func (f *fakeGateway) script(symbol string, states ...broker.OrderState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[symbol] = states
}

func (f *fakeGateway) Balance(context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balanceErr
}

func (f *fakeGateway) Candles(_ context.Context, symbol string, _, _ time.Time, _ market.Granularity) (market.Candles, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.candleErr[symbol]; err != nil {
		return nil, err
	}
	return f.candles[symbol], nil
}

func (f *fakeGateway) BestBidAsk(_ context.Context, symbol string) (market.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (f *fakeGateway) SizeIncrement(context.Context, string) (int32, error) {
	return f.sizeInc, nil
}

func (f *fakeGateway) PriceIncrement(context.Context, string) (int32, error) {
	return f.priceInc, nil
}

func (f *fakeGateway) SubmitLimitOrder(ctx context.Context, req broker.LimitOrder) (broker.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	f.submitCtxErr = append(f.submitCtxErr, ctx.Err())
	if f.submitErr != nil {
		return broker.OrderAck{}, f.submitErr
	}
	if f.rejectAck != "" {
		return broker.OrderAck{Success: false, FailureReason: f.rejectAck}, nil
	}
	f.nextID++
	oid := fmt.Sprintf("ord-%d", f.nextID)
	f.orderSymbol[oid] = req.Symbol
	return broker.OrderAck{Success: true, BrokerOrderID: oid}, nil
}

func (f *fakeGateway) OrderStatus(_ context.Context, oid string) (broker.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls[oid]++
	if f.statusErr != nil {
		return broker.OrderState{}, f.statusErr
	}
	if slices.Contains(f.cancelled, oid) {
		return broker.OrderState{BrokerOrderID: oid, Status: broker.StatusCancelled, Fill: f.cancelFill}, nil
	}
	script := f.statuses[f.orderSymbol[oid]]
	if len(script) == 0 {
		return broker.OrderState{BrokerOrderID: oid, Status: broker.StatusOpen}, nil
	}
	st := script[0]
	if len(script) > 1 {
		f.statuses[f.orderSymbol[oid]] = script[1:]
	}
	st.BrokerOrderID = oid
	return st, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, oid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	if f.cancelOK {
		f.cancelled = append(f.cancelled, oid)
	}
	return f.cancelOK, nil
}

func (f *fakeGateway) StatusCalls(oid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[oid]
}

func (f *fakeGateway) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeGateway) Submitted() []broker.LimitOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.LimitOrder(nil), f.submitted...)
}

// predictorFunc adapts a function to predict.Predictor.
type predictorFunc func(ctx context.Context, snap market.Snapshot) (int, error)

func (p predictorFunc) Predict(ctx context.Context, snap market.Snapshot) (int, error) {
	return p(ctx, snap)
}

func always(v int) predictorFunc {
	return func(context.Context, market.Snapshot) (int, error) { return v, nil }
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type recordingBackup struct {
	files [][]string
	err   error
}

func (b *recordingBackup) Backup(_ context.Context, files []string) error {
	b.files = append(b.files, files)
	return b.err
}

type fakeLocker struct {
	held     bool
	err      error
	acquired int
	released int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, errors.New("lock held")
	}
	l.held = true
	l.acquired++
	return func() { l.held = false; l.released++ }, nil
}

// newTestManager returns a manager over a fresh book with the production
// timings: 60s cooldown, 3 checks 5s apart.
func newTestManager(t *testing.T, gw *fakeGateway) (*Manager, *state.Book, *sleeper) {
	t.Helper()
	clk := newClock()
	sl := &sleeper{clock: clk}
	book := state.NewBook()
	book.EnsureSymbols([]string{"BTC", "ETH"})
	m := NewManager(gw, book, ManagerConfig{
		Cooldown:      time.Minute,
		PollAttempts:  3,
		PollDelay:     5 * time.Second,
		SubmitTimeout: time.Second,
		Levels:        func(decimal.Decimal) risk.Levels { return risk.LevelsFromPercent(5, 5) },
		Now:           clk.Now,
		Sleep:         sl.Sleep,
		IDs:           id.NewGenerator(clk.Now),
		Logger:        quietLogger(),
	})
	return m, book, sl
}

func testConfig(t *testing.T, symbols ...string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Cryptocurrencies = symbols
	cfg.StateDir = t.TempDir()
	cfg.Journal.Type = "none"
	cfg.StopLoss = config.StopLoss{Percent: 5}
	require.NoError(t, cfg.Validate())
	return cfg
}

func mkdir(p string) error { return os.MkdirAll(p, 0o755) }
