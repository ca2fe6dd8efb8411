package risk

import "github.com/shopspring/decimal"

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Levels are take-profit and stop-loss distances as fractions of price
// (0.05 is 5%).
type Levels struct {
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// LevelsFromPercent converts configured percents (5 means 5%) to Levels.
func LevelsFromPercent(takeProfit, stopLoss float64) Levels {
	return Levels{
		TakeProfit: decimal.NewFromFloat(takeProfit).Div(hundred),
		StopLoss:   decimal.NewFromFloat(stopLoss).Div(hundred),
	}
}

// Policy holds the per-trade limits shared by every symbol.
type Policy struct {
	MaxTradeAmount    decimal.Decimal // quote currency per trade, e.g. 100 USD
	PositionSizeLimit decimal.Decimal // fraction of balance, e.g. 0.1
	Levels            Levels
}
