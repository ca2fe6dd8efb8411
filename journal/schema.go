package journal

// Decimal columns are TEXT so amounts survive exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	client_order_id TEXT PRIMARY KEY,
	log_name TEXT NOT NULL,
	broker_order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	status TEXT NOT NULL,
	size TEXT NOT NULL,
	limit_price TEXT NOT NULL,
	submit_time DATETIME NOT NULL,
	filled_size TEXT NOT NULL,
	fill_price TEXT NOT NULL,
	resolved_time DATETIME NOT NULL,
	error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_submit_time ON orders(submit_time);
CREATE INDEX IF NOT EXISTS idx_orders_broker_id ON orders(broker_order_id);

CREATE TABLE IF NOT EXISTS cycles (
	time DATETIME NOT NULL,
	balance TEXT NOT NULL,
	symbols INTEGER NOT NULL,
	submitted INTEGER NOT NULL,
	filled INTEGER NOT NULL,
	cancelled INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	rejected INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_time ON cycles(time);
`
