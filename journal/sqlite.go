package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RecordOrder inserts the order or updates it in place as it moves through
// its lifecycle.
func (j *SQLite) RecordOrder(r OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(client_order_id, log_name, broker_order_id, symbol, side, status, size, limit_price,
		 submit_time, filled_size, fill_price, resolved_time, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_order_id) DO UPDATE SET
			log_name = excluded.log_name,
			broker_order_id = excluded.broker_order_id,
			status = excluded.status,
			filled_size = excluded.filled_size,
			fill_price = excluded.fill_price,
			resolved_time = excluded.resolved_time,
			error = excluded.error`,
		r.ClientOrderID, r.LogName, r.BrokerOrderID, r.Symbol, r.Side, r.Status,
		r.Size.String(), r.LimitPrice.String(), r.SubmitTime.UTC(),
		r.FilledSize.String(), r.FillPrice.String(), r.ResolvedTime.UTC(), r.Error,
	)
	if err != nil {
		return fmt.Errorf("record order %s: %w", r.ClientOrderID, err)
	}
	return nil
}

func (j *SQLite) RecordCycle(c CycleRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO cycles
		(time, balance, symbols, submitted, filled, cancelled, failed, rejected, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Time.UTC(), c.Balance.String(), c.Symbols, c.Submitted, c.Filled, c.Cancelled,
		c.Failed, c.Rejected, c.Duration.Milliseconds(), c.Error,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
