package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
)

// TakerFeeRate is the fee charged on filled notional.
var TakerFeeRate = decimal.RequireFromString("0.008")

type Report struct {
	Day            time.Time
	Submitted      int // accepted by the broker, filled or not
	Filled         int
	Cancelled      int
	Failed         int
	Rejected       int
	Buys           int
	Sells          int
	FilledNotional decimal.Decimal
	Fees           decimal.Decimal
	Cycles         int
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
}

// BalanceChange is the quote balance change across the day's cycles.
func (r Report) BalanceChange() decimal.Decimal {
	return r.ClosingBalance.Sub(r.OpeningBalance)
}

// DayBounds returns [start, end) of day in UTC.
func DayBounds(day time.Time) (time.Time, time.Time) {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// DailyReport summarizes the orders and cycles of one day. Fees are charged
// per filled order and rounded to cents.
func DailyReport(day time.Time, orders []OrderRecord, cycles []CycleRecord) Report {
	start, _ := DayBounds(day)
	r := Report{Day: start, Cycles: len(cycles)}

	for _, o := range orders {
		switch o.Status {
		case string(state.Filled):
			r.Filled++
			n := o.Notional()
			r.FilledNotional = r.FilledNotional.Add(n)
			r.Fees = r.Fees.Add(n.Mul(TakerFeeRate).Round(2))
		case string(state.Cancelled):
			r.Cancelled++
		case string(state.Failed):
			r.Failed++
		case string(state.Rejected):
			r.Rejected++
		}
		if o.BrokerOrderID != "" {
			r.Submitted++
		}
		if o.Status != string(state.Rejected) && o.Status != string(state.Failed) {
			switch o.Side {
			case string(broker.Buy):
				r.Buys++
			case string(broker.Sell):
				r.Sells++
			}
		}
	}
	if len(cycles) > 0 {
		r.OpeningBalance = cycles[0].Balance
		r.ClosingBalance = cycles[len(cycles)-1].Balance
	}
	return r
}

// FormatReportOrg renders the report as an Org table.
func FormatReportOrg(r Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("* Daily report %s\n", r.Day.Format("2006-01-02")))
	row := func(k, v string) { b.WriteString(fmt.Sprintf("| %s | %s |\n", k, v)) }
	row("cycles", fmt.Sprint(r.Cycles))
	row("submitted", fmt.Sprint(r.Submitted))
	row("filled", fmt.Sprint(r.Filled))
	row("cancelled", fmt.Sprint(r.Cancelled))
	row("failed", fmt.Sprint(r.Failed))
	row("rejected", fmt.Sprint(r.Rejected))
	row("buys / sells", fmt.Sprintf("%d / %d", r.Buys, r.Sells))
	row("filled notional", r.FilledNotional.StringFixed(2))
	row("fees", r.Fees.StringFixed(2))
	row("opening balance", r.OpeningBalance.StringFixed(2))
	row("closing balance", r.ClosingBalance.StringFixed(2))
	row("balance change", r.BalanceChange().StringFixed(2))
	return b.String()
}
