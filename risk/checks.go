package risk

import (
	"fmt"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/shopspring/decimal"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	Notional decimal.Decimal
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Has reports whether the decision carries a violation with code.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	s := ""
	for i, v := range d.Violations {
		if i > 0 {
			s += "; "
		}
		s += v.Code + ": " + v.Msg
	}
	return s
}

// Intent is an order the cycle is about to submit.
type Intent struct {
	Symbol string
	Side   broker.Side
	Size   decimal.Decimal
	Price  decimal.Decimal
}

const (
	CodeNoSize            = "NO_SIZE"
	CodeNoPrice           = "NO_PRICE"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
)

// Evaluate runs the pre-submission checks. balance is the quote currency still
// available this cycle; only buys spend it.
func Evaluate(in Intent, balance decimal.Decimal) Decision {
	d := Decision{Allowed: true}

	if !in.Size.IsPositive() {
		d.add(CodeNoSize, "size must be positive")
	}
	if !in.Price.IsPositive() {
		d.add(CodeNoPrice, "limit price must be positive")
	}
	if !d.Allowed {
		return d
	}

	d.Notional = Notional(in.Size, in.Price)
	if in.Side == broker.Buy && d.Notional.GreaterThan(balance) {
		d.add(CodeInsufficientFunds,
			fmt.Sprintf("notional %s exceeds available %s", d.Notional.StringFixed(2), balance.StringFixed(2)))
	}
	return d
}
