package clickhouse

import "fmt"

// Schema returns the DDL for the signal ledger and the resolved-signal log.
// Ledger rows are versioned; the highest version per id wins and deletes are
// tombstones with is_deleted = 1.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signals (
	id String,
	payload String,
	status LowCardinality(String),
	pair LowCardinality(String),
	created_at DateTime64(3, 'UTC'),
	version UInt64,
	is_deleted UInt8 DEFAULT 0
) ENGINE = ReplacingMergeTree(version)
ORDER BY id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signal_log (
	signal_id String,
	ts DateTime64(3, 'UTC'),
	pair LowCardinality(String),
	direction LowCardinality(String),
	entry Float64,
	exit Float64,
	profit_pct Float64,
	confidence UInt8,
	result LowCardinality(String),
	logged_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(logged_at)
ORDER BY (ts, signal_id)`, database),
	}
}
