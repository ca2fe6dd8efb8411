package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const orderColumns = `client_order_id, log_name, broker_order_id, symbol, side, status, size, limit_price,
	submit_time, filled_size, fill_price, resolved_time, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (OrderRecord, error) {
	var (
		rec                                OrderRecord
		size, limit, filledSize, fillPrice string
	)
	err := s.Scan(
		&rec.ClientOrderID,
		&rec.LogName,
		&rec.BrokerOrderID,
		&rec.Symbol,
		&rec.Side,
		&rec.Status,
		&size,
		&limit,
		&rec.SubmitTime,
		&filledSize,
		&fillPrice,
		&rec.ResolvedTime,
		&rec.Error,
	)
	if err != nil {
		return OrderRecord{}, err
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.Size, size},
		{&rec.LimitPrice, limit},
		{&rec.FilledSize, filledSize},
		{&rec.FillPrice, fillPrice},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return OrderRecord{}, fmt.Errorf("order %s: %w", rec.ClientOrderID, err)
		}
	}
	return rec, nil
}

// GetOrder returns a single order by client order id, broker order id or log
// name.
func (j *SQLite) GetOrder(id string) (OrderRecord, error) {
	row := j.db.QueryRow(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE client_order_id = ? OR broker_order_id = ? OR log_name = ?
		LIMIT 1`, id, id, id)

	rec, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OrderRecord{}, fmt.Errorf("order %q not found", id)
		}
		return OrderRecord{}, err
	}
	return rec, nil
}

// ListOrdersBetween returns orders submitted within [start, end).
func (j *SQLite) ListOrdersBetween(start, end time.Time) ([]OrderRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE submit_time >= ? AND submit_time < ?
		ORDER BY submit_time ASC, client_order_id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCyclesBetween returns cycles started within [start, end).
func (j *SQLite) ListCyclesBetween(start, end time.Time) ([]CycleRecord, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, symbols, submitted, filled, cancelled, failed, rejected, duration_ms, error
		FROM cycles
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			rec     CycleRecord
			balance string
			ms      int64
		)
		if err := rows.Scan(
			&rec.Time,
			&balance,
			&rec.Symbols,
			&rec.Submitted,
			&rec.Filled,
			&rec.Cancelled,
			&rec.Failed,
			&rec.Rejected,
			&ms,
			&rec.Error,
		); err != nil {
			return nil, err
		}
		if rec.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("cycle %s: %w", rec.Time, err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
