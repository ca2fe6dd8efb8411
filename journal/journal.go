// Package journal keeps an append-only audit trail of order attempts and
// cycles, separate from the state files the bot runs on.
package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
)

// OrderRecord is the journaled view of a trade log entry. Records are keyed
// by client order id; later records for the same id replace earlier ones.
type OrderRecord struct {
	ClientOrderID string
	LogName       string
	BrokerOrderID string
	Symbol        string
	Side          string
	Status        string
	Size          decimal.Decimal
	LimitPrice    decimal.Decimal
	SubmitTime    time.Time
	FilledSize    decimal.Decimal
	FillPrice     decimal.Decimal
	ResolvedTime  time.Time // fill or cancel time, zero while open
	Error         string
}

// Notional is the filled size times fill price.
func (r OrderRecord) Notional() decimal.Decimal {
	return r.FilledSize.Mul(r.FillPrice)
}

// FromEntry converts a trade log entry.
func FromEntry(e state.Entry) OrderRecord {
	rec := OrderRecord{
		ClientOrderID: e.Order.ClientOrderID,
		LogName:       e.LogName,
		BrokerOrderID: e.Order.BrokerOrderID,
		Symbol:        e.Order.Symbol,
		Side:          string(e.Order.Side),
		Status:        string(e.Status),
		Size:          e.Order.Size,
		LimitPrice:    e.Order.LimitPrice,
		SubmitTime:    e.Order.SubmitTime.UTC(),
		Error:         e.Error,
	}
	if f := e.Fill; f != nil && f.Filled {
		rec.FilledSize = f.Size
		rec.FillPrice = f.Price
		rec.ResolvedTime = f.Time.UTC()
	}
	if c := e.Cancellation; c != nil && c.Cancelled {
		rec.ResolvedTime = c.Time.UTC()
	}
	return rec
}

// CycleRecord summarizes one trading cycle.
type CycleRecord struct {
	Time      time.Time
	Balance   decimal.Decimal
	Symbols   int
	Submitted int
	Filled    int
	Cancelled int
	Failed    int
	Rejected  int
	Duration  time.Duration
	Error     string
}

type Journal interface {
	RecordOrder(OrderRecord) error
	RecordCycle(CycleRecord) error
	Close() error
}

type multi []Journal

// Tee fans every record out to all journals.
func Tee(js ...Journal) Journal {
	return multi(js)
}

func (m multi) RecordOrder(r OrderRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordOrder(r))
	}
	return errors.Join(errs...)
}

func (m multi) RecordCycle(r CycleRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordCycle(r))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
