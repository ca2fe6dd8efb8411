package state

import (
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/shopspring/decimal"
)

// LogNameLayout formats the submission time inside a trade log name.
const LogNameLayout = "2006-01-02 15:04:05"

// LogName keys a trade log entry: "<SYMBOL> - YYYY-MM-DD HH:MM:SS" in UTC.
func LogName(symbol string, t time.Time) string {
	return symbol + " - " + t.UTC().Format(LogNameLayout)
}

type Order struct {
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          broker.Side     `json:"side"`
	Size          decimal.Decimal `json:"size"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	SubmitTime    time.Time       `json:"submit_time"`
	BrokerOrderID string          `json:"broker_order_id,omitempty"` // empty when submission failed
}

type EntryStatus string

const (
	PendingSubmit EntryStatus = "pending_submit"
	Submitted     EntryStatus = "submitted"
	Filled        EntryStatus = "filled"
	Cancelled     EntryStatus = "cancelled"
	Failed        EntryStatus = "failed"
	Rejected      EntryStatus = "rejected"
)

// Final reports whether no further transition is possible.
func (s EntryStatus) Final() bool {
	switch s {
	case Filled, Cancelled, Failed, Rejected:
		return true
	}
	return false
}

type FillDetails struct {
	Filled bool            `json:"filled"`
	Size   decimal.Decimal `json:"size"`
	Price  decimal.Decimal `json:"price"`
	Time   time.Time       `json:"time"`
}

type CancelDetails struct {
	Filled    bool      `json:"filled"`
	Cancelled bool      `json:"cancelled"`
	Time      time.Time `json:"time"`
}

// Entry is one order attempt. Prior is the position before submission so a
// cancellation can be rolled back after a restart.
type Entry struct {
	LogName      string         `json:"log_name"`
	Order        Order          `json:"order"`
	Status       EntryStatus    `json:"status"`
	Fill         *FillDetails   `json:"fill,omitempty"`
	Cancellation *CancelDetails `json:"cancellation,omitempty"`
	Error        string         `json:"error,omitempty"`
	Prior        Position       `json:"prior_position"`
	UpdatedAt    time.Time      `json:"updated_at,omitzero"`
}

func (e Entry) Symbol() string { return e.Order.Symbol }
