// Package storage is the SQLite-backed tabular data executor and run log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vinayprograms/agentkit/logging"
	_ "modernc.org/sqlite"
)

// Executor runs read-only analytical queries.
type Executor interface {
	Query(ctx context.Context, query string) (*Table, error)
	TableCounts(ctx context.Context) (map[string]int, error)
}

// DefaultMaxRows caps the rows materialized by a single query.
const DefaultMaxRows = 1000

// Store is a SQLite database holding the supply-chain tables and the run logs.
type Store struct {
	db      *sql.DB
	logger  *logging.Logger
	maxRows int
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:      db,
		logger:  logging.New().WithComponent("storage"),
		maxRows: DefaultMaxRows,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// SetMaxRows overrides DefaultMaxRows. n <= 0 is ignored.
func (s *Store) SetMaxRows(n int) {
	if n > 0 {
		s.maxRows = n
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tables lists the supply-chain and log tables in schema order.
var Tables = []string{
	"orders",
	"shipments",
	"inventory",
	"financial_transactions",
	"agent_execution_log",
	"alert_log",
	"report_archive",
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL UNIQUE,
		order_date DATETIME NOT NULL,
		ship_mode TEXT,
		segment TEXT,
		country TEXT,
		city TEXT,
		state TEXT,
		region TEXT,
		category TEXT,
		sub_category TEXT,
		product_id TEXT,
		cost_price REAL,
		list_price REAL,
		quantity INTEGER,
		discount_percent REAL,
		discount REAL,
		sale_price REAL,
		profit REAL,
		is_returned INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS shipments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shipment_id TEXT NOT NULL UNIQUE,
		product_id TEXT,
		origin_port TEXT,
		destination_port TEXT,
		carrier TEXT,
		shipment_date DATETIME NOT NULL,
		expected_delivery DATETIME NOT NULL,
		actual_delivery DATETIME,
		quantity INTEGER,
		weight_kg REAL,
		freight_cost REAL,
		status TEXT,
		delay_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE,
		product_id TEXT,
		product_name TEXT,
		category TEXT,
		warehouse_location TEXT,
		stock_quantity INTEGER NOT NULL,
		reorder_level INTEGER,
		reorder_quantity INTEGER,
		unit_cost REAL,
		last_restock_date DATETIME,
		lead_time_days INTEGER,
		supplier_id TEXT
	);

	CREATE TABLE IF NOT EXISTS financial_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id TEXT NOT NULL UNIQUE,
		transaction_date DATETIME NOT NULL,
		transaction_type TEXT NOT NULL,
		category TEXT,
		subcategory TEXT,
		amount REAL NOT NULL,
		currency TEXT DEFAULT 'USD',
		cost_center TEXT,
		business_unit TEXT,
		vendor_id TEXT
	);

	CREATE TABLE IF NOT EXISTS agent_execution_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		agent_name TEXT NOT NULL,
		query TEXT NOT NULL,
		execution_start DATETIME,
		duration_ms INTEGER,
		success INTEGER NOT NULL DEFAULT 1,
		timed_out INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		result_summary TEXT
	);

	CREATE TABLE IF NOT EXISTS alert_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT,
		description TEXT,
		affected_entities TEXT,
		risk_score REAL,
		recommended_actions TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS report_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL UNIQUE,
		query TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		agents_used TEXT,
		report_content TEXT,
		insights_count INTEGER,
		recommendations_count INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(order_date);
	CREATE INDEX IF NOT EXISTS idx_shipments_date ON shipments(shipment_date);
	CREATE INDEX IF NOT EXISTS idx_shipments_carrier ON shipments(carrier);
	CREATE INDEX IF NOT EXISTS idx_txn_date ON financial_transactions(transaction_date);
	CREATE INDEX IF NOT EXISTS idx_exec_agent ON agent_execution_log(agent_name);
	CREATE INDEX IF NOT EXISTS idx_alert_severity ON alert_log(severity);
	`

	_, err := s.db.Exec(schema)
	return err
}
