// Package store keeps a history of what the relay did with each code.
//
// # Architecture
//
// Store is the single interface; SQLiteStore implements it on top of
// modernc.org/sqlite so the binary stays cgo-free. History is write-mostly:
// the relay appends one Delivery per decision and the transport's ack
// callback stamps AckedAt on the newest matching forward.
//
// History is an audit trail only. The dedup window lives in memory
// (package dedupe) and is never rebuilt from these rows.
//
// # Data Model
//
//   - Delivery: one relay decision (forwarded, suppressed or failed)
//   - DeliveryFilter: code/outcome/since filters for ListDeliveries
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as fixed-width UTC strings so ORDER BY and range
// filters work on the text column.
//
// # Testing
//
// Use NewSQLiteStore(":memory:") or a file under t.TempDir().
package store
