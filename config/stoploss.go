package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StopLoss is the stop-loss distance in percent. It is either a single
// number or a tier map keyed by minimum price, e.g. {"100+": 5, "0+": 8}.
type StopLoss struct {
	Percent float64
	Tiers   map[string]float64
}

type tier struct {
	min     float64
	percent float64
}

// IsZero reports whether nothing was configured.
func (s StopLoss) IsZero() bool {
	return s.Percent == 0 && len(s.Tiers) == 0
}

// For returns the percent for a symbol trading at price: the tier with the
// highest threshold not above price, or the lowest tier when price is below
// every threshold.
func (s StopLoss) For(price decimal.Decimal) float64 {
	if len(s.Tiers) == 0 {
		return s.Percent
	}
	tiers, err := s.sorted()
	if err != nil || len(tiers) == 0 {
		return s.Percent
	}
	p := price.InexactFloat64()
	pick := tiers[0].percent
	for _, t := range tiers {
		if p >= t.min {
			pick = t.percent
		}
	}
	return pick
}

// Validate checks tier keys and that every percent is in (0, 100).
func (s StopLoss) Validate() error {
	if len(s.Tiers) == 0 {
		if s.Percent <= 0 || s.Percent >= 100 {
			return fmt.Errorf("percent %v must be in (0, 100)", s.Percent)
		}
		return nil
	}
	tiers, err := s.sorted()
	if err != nil {
		return err
	}
	for _, t := range tiers {
		if t.percent <= 0 || t.percent >= 100 {
			return fmt.Errorf("tier %v+: percent %v must be in (0, 100)", t.min, t.percent)
		}
	}
	return nil
}

func (s StopLoss) sorted() ([]tier, error) {
	out := make([]tier, 0, len(s.Tiers))
	for k, v := range s.Tiers {
		lo, err := parseTierKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, tier{min: lo, percent: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].min < out[j].min })
	return out, nil
}

func parseTierKey(k string) (float64, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(k), "+")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid tier %q, want a price like \"100+\"", k)
	}
	return v, nil
}

func (s StopLoss) String() string {
	tiers, err := s.sorted()
	if err != nil || len(tiers) == 0 {
		return strconv.FormatFloat(s.Percent, 'f', -1, 64) + "%"
	}
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = fmt.Sprintf("%v+: %v%%", t.min, t.percent)
	}
	return strings.Join(parts, ", ")
}

func (s StopLoss) clone() StopLoss {
	out := StopLoss{Percent: s.Percent}
	if s.Tiers != nil {
		out.Tiers = make(map[string]float64, len(s.Tiers))
		for k, v := range s.Tiers {
			out.Tiers[k] = v
		}
	}
	return out
}

func (s StopLoss) value() any {
	if len(s.Tiers) > 0 {
		return s.Tiers
	}
	return s.Percent
}

// UnmarshalYAML accepts a scalar or a mapping.
func (s *StopLoss) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var p float64
		if err := n.Decode(&p); err != nil {
			return err
		}
		*s = StopLoss{Percent: p}
	case yaml.MappingNode:
		var m map[string]float64
		if err := n.Decode(&m); err != nil {
			return err
		}
		*s = StopLoss{Tiers: m}
	default:
		return errors.New("stop_loss_percentages must be a number or a map")
	}
	return nil
}

func (s StopLoss) MarshalYAML() (any, error) { return s.value(), nil }

// UnmarshalJSON accepts a number or an object.
func (s *StopLoss) UnmarshalJSON(b []byte) error {
	var p float64
	if err := json.Unmarshal(b, &p); err == nil {
		*s = StopLoss{Percent: p}
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return errors.New("stop_loss_percentages must be a number or an object")
	}
	*s = StopLoss{Tiers: m}
	return nil
}

func (s StopLoss) MarshalJSON() ([]byte, error) { return json.Marshal(s.value()) }

// UnmarshalTOML accepts a number or a table.
func (s *StopLoss) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case int64:
		*s = StopLoss{Percent: float64(x)}
	case float64:
		*s = StopLoss{Percent: x}
	case map[string]any:
		m := make(map[string]float64, len(x))
		for k, raw := range x {
			switch n := raw.(type) {
			case int64:
				m[k] = float64(n)
			case float64:
				m[k] = n
			default:
				return fmt.Errorf("tier %q: want a number, got %T", k, raw)
			}
		}
		*s = StopLoss{Tiers: m}
	default:
		return fmt.Errorf("stop_loss_percentages must be a number or a table, got %T", v)
	}
	return nil
}

// MarshalTOML renders a number or an inline table.
func (s StopLoss) MarshalTOML() ([]byte, error) {
	if len(s.Tiers) == 0 {
		return []byte(strconv.FormatFloat(s.Percent, 'f', -1, 64)), nil
	}
	keys := make([]string, 0, len(s.Tiers))
	for k := range s.Tiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q = %s", k, strconv.FormatFloat(s.Tiers[k], 'f', -1, 64)))
	}
	return []byte("{ " + strings.Join(parts, ", ") + " }"), nil
}
