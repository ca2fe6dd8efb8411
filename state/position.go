// Package state holds the records that survive between cycles: one Position
// per symbol and the trade log of every order attempt, persisted as JSON.
package state

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	Open   PositionStatus = "open"
	Closed PositionStatus = "closed"
)

type Direction string

const (
	Long Direction = "LONG"
	Flat Direction = "FLAT"
)

// Position is the bot's view of one symbol. Closed positions are FLAT with
// zero size; open positions carry a size and both exit levels.
type Position struct {
	Status        PositionStatus  `json:"status"`
	Direction     Direction       `json:"direction"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	Size          decimal.Decimal `json:"size"`
	ProfitTarget  decimal.Decimal `json:"profit_target"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

// ClosedPosition is the state every symbol starts in.
func ClosedPosition() Position {
	return Position{Status: Closed, Direction: Flat}
}

func (p Position) IsOpen() bool { return p.Status == Open }

// Validate checks the status invariants.
func (p Position) Validate() error {
	switch p.Status {
	case Closed:
		if p.Direction != Flat {
			return fmt.Errorf("closed position must be FLAT, got %s", p.Direction)
		}
		if !p.Size.IsZero() {
			return fmt.Errorf("closed position must have zero size, got %s", p.Size)
		}
	case Open:
		if p.Direction != Long && p.Direction != Flat {
			return fmt.Errorf("invalid direction %q", p.Direction)
		}
		if !p.Size.IsPositive() {
			return fmt.Errorf("open position must have positive size, got %s", p.Size)
		}
		if !p.ProfitTarget.IsPositive() || !p.StopLossPrice.IsPositive() {
			return fmt.Errorf("open position must have profit target and stop loss set")
		}
	default:
		return fmt.Errorf("invalid status %q", p.Status)
	}
	return nil
}

func (p Position) String() string {
	if !p.IsOpen() {
		return "closed"
	}
	return fmt.Sprintf("open %s size=%s entry=%s target=%s stop=%s",
		p.Direction, p.Size, p.EntryPrice, p.ProfitTarget, p.StopLossPrice)
}
