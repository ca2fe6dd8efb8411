// Package predict turns a market snapshot into a binary prediction: 1 when
// the model expects the price to rise, 0 otherwise.
package predict

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/cryptobot/indicators"
	"github.com/rustyeddy/cryptobot/market"
)

type Predictor interface {
	Predict(ctx context.Context, snap market.Snapshot) (int, error)
}

// Factory builds a predictor from its lookback period.
type Factory func(period int) (Predictor, error)

var registry = map[string]Factory{
	"trend": func(period int) (Predictor, error) { return NewTrend(period) },
	"constant": func(int) (Predictor, error) {
		return Constant(1), nil
	},
}

func Register(name string, f Factory) {
	registry[strings.ToLower(name)] = f
}

// Names lists the registered predictors.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByName builds a registered predictor.
func ByName(name string, period int) (Predictor, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown predictor %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(period)
}

// Constant always predicts the same value.
type Constant int

func (c Constant) Predict(context.Context, market.Snapshot) (int, error) {
	return int(c), nil
}

// DefaultPeriod is the SMA/EMA window the trend model reads.
const DefaultPeriod = 15

// Trend predicts 1 while the EMA of closes is at or above their SMA.
type Trend struct {
	period int
}

func NewTrend(period int) (*Trend, error) {
	if period == 0 {
		period = DefaultPeriod
	}
	if period < 0 {
		return nil, fmt.Errorf("trend period must be positive, got %d", period)
	}
	return &Trend{period: period}, nil
}

func (t *Trend) Predict(ctx context.Context, snap market.Snapshot) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sma, err := indicators.MA(snap.Candles, t.period)
	if err != nil {
		return 0, fmt.Errorf("trend %s: %w", snap.Symbol, err)
	}
	ema, err := indicators.EMA(snap.Candles, t.period)
	if err != nil {
		return 0, fmt.Errorf("trend %s: %w", snap.Symbol, err)
	}
	if ema >= sma {
		return 1, nil
	}
	return 0, nil
}
