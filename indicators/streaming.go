package indicators

import (
	"fmt"

	"github.com/rustyeddy/cryptobot/market"
)

// SimpleMA averages the last period closes using a fixed ring buffer.
type SimpleMA struct {
	period int
	ring   []float64
	next   int
	filled int
	sum    float64
}

func NewMA(period int) *SimpleMA {
	return &SimpleMA{period: period, ring: make([]float64, max(period, 0))}
}

func (m *SimpleMA) Name() string { return fmt.Sprintf("MA(%d)", m.period) }
func (m *SimpleMA) Warmup() int  { return m.period }

func (m *SimpleMA) Reset() {
	clear(m.ring)
	m.next, m.filled, m.sum = 0, 0, 0
}

func (m *SimpleMA) Update(c market.Candle) {
	if m.period <= 0 {
		return
	}
	m.sum += c.Close - m.ring[m.next]
	m.ring[m.next] = c.Close
	m.next = (m.next + 1) % m.period
	if m.filled < m.period {
		m.filled++
	}
}

func (m *SimpleMA) Ready() bool { return m.period > 0 && m.filled == m.period }

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(m.period)
}

// ExponentialMA is seeded with the SMA of its first period closes, then
// smoothed with k = 2/(period+1).
type ExponentialMA struct {
	period int
	k      float64
	seed   float64
	n      int
	value  float64
}

func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{period: period, k: 2 / float64(period+1)}
}

func (e *ExponentialMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *ExponentialMA) Warmup() int  { return e.period }

func (e *ExponentialMA) Reset() {
	e.seed, e.n, e.value = 0, 0, 0
}

func (e *ExponentialMA) Update(c market.Candle) {
	if e.period <= 0 {
		return
	}
	e.n++
	switch {
	case e.n < e.period:
		e.seed += c.Close
	case e.n == e.period:
		e.value = (e.seed + c.Close) / float64(e.period)
	default:
		e.value += (c.Close - e.value) * e.k
	}
}

func (e *ExponentialMA) Ready() bool { return e.period > 0 && e.n >= e.period }

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.value
}

var (
	_ Indicator = (*SimpleMA)(nil)
	_ Indicator = (*ExponentialMA)(nil)
)
