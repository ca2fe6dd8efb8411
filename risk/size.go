package risk

import "github.com/shopspring/decimal"

type SizeInputs struct {
	Policy

	Balance       decimal.Decimal
	Price         decimal.Decimal
	SizeIncrement int32 // decimal places of the product's base increment

	// Open positions keep their size; the sizer never re-clamps them.
	Open     bool
	OpenSize decimal.Decimal
}

// Size returns the order size in base currency. A balance below the max trade
// amount yields zero. A closed position is sized to
// min(balance*limit/price, max/price), truncated to the size increment.
func Size(in SizeInputs) decimal.Decimal {
	if in.Balance.LessThan(in.MaxTradeAmount) {
		return decimal.Zero
	}
	if in.Open {
		if in.OpenSize.IsNegative() {
			return decimal.Zero
		}
		return in.OpenSize
	}
	if !in.Price.IsPositive() {
		return decimal.Zero
	}

	byBalance := in.Balance.Mul(in.PositionSizeLimit).Div(in.Price)
	byAmount := in.MaxTradeAmount.Div(in.Price)
	size := decimal.Min(byBalance, byAmount).Truncate(in.SizeIncrement)
	if size.IsNegative() {
		return decimal.Zero
	}
	return size
}
