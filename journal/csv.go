package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	orderHeader = []string{"client_order_id", "log_name", "broker_order_id", "symbol", "side", "status",
		"size", "limit_price", "submit_time", "filled_size", "fill_price", "resolved_time", "error"}
	cycleHeader = []string{"time", "balance", "symbols", "submitted", "filled", "cancelled", "failed",
		"rejected", "duration_ms", "error"}
)

// CSVJournal appends one row per record. Order rows are an event log: the
// same client order id appears once per lifecycle transition.
type CSVJournal struct {
	orders *csv.Writer
	cycles *csv.Writer
	of, cf *os.File
}

func openAppend(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, nil, err
		}
	}
	return f, w, nil
}

func NewCSV(ordersPath, cyclesPath string) (*CSVJournal, error) {
	of, ow, err := openAppend(ordersPath, orderHeader)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ordersPath, err)
	}
	cf, cw, err := openAppend(cyclesPath, cycleHeader)
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("open %s: %w", cyclesPath, err)
	}
	return &CSVJournal{orders: ow, cycles: cw, of: of, cf: cf}, nil
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (j *CSVJournal) RecordOrder(r OrderRecord) error {
	err := j.orders.Write([]string{
		r.ClientOrderID,
		r.LogName,
		r.BrokerOrderID,
		r.Symbol,
		r.Side,
		r.Status,
		r.Size.String(),
		r.LimitPrice.String(),
		ts(r.SubmitTime),
		r.FilledSize.String(),
		r.FillPrice.String(),
		ts(r.ResolvedTime),
		r.Error,
	})
	if err != nil {
		return err
	}
	j.orders.Flush()
	return j.orders.Error()
}

func (j *CSVJournal) RecordCycle(c CycleRecord) error {
	err := j.cycles.Write([]string{
		ts(c.Time),
		c.Balance.String(),
		strconv.Itoa(c.Symbols),
		strconv.Itoa(c.Submitted),
		strconv.Itoa(c.Filled),
		strconv.Itoa(c.Cancelled),
		strconv.Itoa(c.Failed),
		strconv.Itoa(c.Rejected),
		strconv.FormatInt(c.Duration.Milliseconds(), 10),
		c.Error,
	})
	if err != nil {
		return err
	}
	j.cycles.Flush()
	return j.cycles.Error()
}

func (j *CSVJournal) Close() error {
	j.orders.Flush()
	if err := j.orders.Error(); err != nil {
		return err
	}
	j.cycles.Flush()
	if err := j.cycles.Error(); err != nil {
		return err
	}

	if err := j.of.Close(); err != nil {
		return err
	}
	if err := j.cf.Close(); err != nil {
		return err
	}
	return nil
}
