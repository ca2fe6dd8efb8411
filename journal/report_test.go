package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyReport(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	filled := func(cid, side, size, price string) OrderRecord {
		r := sampleOrder(cid, day)
		r.Side = side
		r.Status = "filled"
		r.FilledSize = dec(size)
		r.FillPrice = dec(price)
		return r
	}
	cancelled := sampleOrder("C", day)
	cancelled.Status = "cancelled"
	failed := sampleOrder("F", day)
	failed.Status = "failed"
	failed.BrokerOrderID = ""
	rejected := sampleOrder("R", day)
	rejected.Status = "rejected"
	rejected.BrokerOrderID = ""

	orders := []OrderRecord{
		filled("A", "BUY", "0.002", "50000"),  // 100.00 notional, 0.80 fee
		filled("B", "SELL", "1.5", "3000.10"), // 4500.15 notional, 36.0012 -> 36.00 fee
		cancelled, failed, rejected,
	}
	cycles := []CycleRecord{
		{Time: day.Add(-6 * time.Hour), Balance: dec("1000")},
		{Time: day, Balance: dec("1250.5")},
	}

	r := DailyReport(day, orders, cycles)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), r.Day)
	assert.Equal(t, 3, r.Submitted)
	assert.Equal(t, 2, r.Filled)
	assert.Equal(t, 1, r.Cancelled)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Rejected)
	assert.Equal(t, 2, r.Buys)
	assert.Equal(t, 1, r.Sells)
	assert.Equal(t, "4600.15", r.FilledNotional.StringFixed(2))
	assert.Equal(t, "36.80", r.Fees.StringFixed(2))
	assert.Equal(t, "250.50", r.BalanceChange().StringFixed(2))
	assert.Equal(t, 2, r.Cycles)

	out := FormatReportOrg(r)
	assert.Contains(t, out, "* Daily report 2024-03-10\n")
	assert.Contains(t, out, "| fees | 36.80 |\n")
	assert.Contains(t, out, "| buys / sells | 2 / 1 |\n")
}

func TestDailyReport_Empty(t *testing.T) {
	t.Parallel()

	r := DailyReport(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), nil, nil)
	assert.Zero(t, r.Filled)
	assert.True(t, r.Fees.IsZero())
	assert.True(t, r.BalanceChange().IsZero())
}

func TestFromEntry(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 10, 1, 2, 3, 0, time.UTC)
	e := state.Entry{
		LogName: state.LogName("ETH", at),
		Order: state.Order{
			ClientOrderID: "CID", Symbol: "ETH", Side: broker.Sell,
			Size: dec("1"), LimitPrice: dec("3000"), SubmitTime: at, BrokerOrderID: "BID",
		},
		Status:       state.Cancelled,
		Cancellation: &state.CancelDetails{Cancelled: true, Time: at.Add(time.Minute)},
	}

	r := FromEntry(e)
	assert.Equal(t, "CID", r.ClientOrderID)
	assert.Equal(t, "ETH - 2024-03-10 01:02:03", r.LogName)
	assert.Equal(t, "SELL", r.Side)
	assert.Equal(t, "cancelled", r.Status)
	assert.True(t, r.FilledSize.IsZero())
	assert.Equal(t, at.Add(time.Minute), r.ResolvedTime)
}

type stubJournal struct {
	orders, cycles int
	err            error
	closed         bool
}

func (s *stubJournal) RecordOrder(OrderRecord) error { s.orders++; return s.err }
func (s *stubJournal) RecordCycle(CycleRecord) error { s.cycles++; return s.err }
func (s *stubJournal) Close() error                  { s.closed = true; return nil }

func TestTee(t *testing.T) {
	t.Parallel()

	ok := &stubJournal{}
	bad := &stubJournal{err: errors.New("disk full")}
	j := Tee(ok, bad)

	err := j.RecordOrder(OrderRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Error(t, j.RecordCycle(CycleRecord{}))
	require.NoError(t, j.Close())

	assert.Equal(t, 1, ok.orders)
	assert.Equal(t, 1, bad.orders)
	assert.Equal(t, 1, ok.cycles)
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}
