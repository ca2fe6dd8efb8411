package state

import (
	"fmt"
	"sort"
)

type Positions map[string]Position

// TradeLogs maps symbol to log name to entry.
type TradeLogs map[string]map[string]Entry

// Book is the in-memory state of one run. Every mutation marks the matching
// store as updated so only changed stores are rewritten.
type Book struct {
	Positions Positions
	TradeLogs TradeLogs

	positionsUpdated bool
	logsUpdated      bool
}

func NewBook() *Book {
	return &Book{Positions: make(Positions), TradeLogs: make(TradeLogs)}
}

// EnsureSymbols creates a closed position for every symbol that has none.
func (b *Book) EnsureSymbols(symbols []string) {
	for _, s := range symbols {
		if _, ok := b.Positions[s]; !ok {
			b.Positions[s] = ClosedPosition()
			b.positionsUpdated = true
		}
	}
}

// Position returns the position for symbol, closed if unknown.
func (b *Book) Position(symbol string) Position {
	if p, ok := b.Positions[symbol]; ok {
		return p
	}
	return ClosedPosition()
}

func (b *Book) SetPosition(symbol string, p Position) {
	b.Positions[symbol] = p
	b.positionsUpdated = true
}

// UniqueLogName returns name, suffixed if the symbol already logged an entry
// with the same name.
func (b *Book) UniqueLogName(symbol, name string) string {
	logs := b.TradeLogs[symbol]
	if _, taken := logs[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		n := fmt.Sprintf("%s #%d", name, i)
		if _, taken := logs[n]; !taken {
			return n
		}
	}
}

func (b *Book) PutEntry(e Entry) {
	sym := e.Symbol()
	if b.TradeLogs[sym] == nil {
		b.TradeLogs[sym] = make(map[string]Entry)
	}
	b.TradeLogs[sym][e.LogName] = e
	b.logsUpdated = true
}

func (b *Book) Entry(symbol, logName string) (Entry, bool) {
	e, ok := b.TradeLogs[symbol][logName]
	return e, ok
}

// Entries returns the symbol's entries oldest first.
func (b *Book) Entries(symbol string) []Entry {
	logs := b.TradeLogs[symbol]
	out := make([]Entry, 0, len(logs))
	for _, e := range logs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogName < out[j].LogName })
	return out
}

// Latest returns the most recent entry for symbol.
func (b *Book) Latest(symbol string) (Entry, bool) {
	var (
		latest Entry
		found  bool
	)
	for name, e := range b.TradeLogs[symbol] {
		if !found || name > latest.LogName {
			latest, found = e, true
		}
	}
	return latest, found
}

// WithStatus returns every entry in status across all symbols, ordered by
// symbol then log name.
func (b *Book) WithStatus(status EntryStatus) []Entry {
	var out []Entry
	for _, logs := range b.TradeLogs {
		for _, e := range logs {
			if e.Status == status {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol() != out[j].Symbol() {
			return out[i].Symbol() < out[j].Symbol()
		}
		return out[i].LogName < out[j].LogName
	})
	return out
}

// Updated reports which stores changed since the last save.
func (b *Book) Updated() (positions, tradeLogs bool) {
	return b.positionsUpdated, b.logsUpdated
}
