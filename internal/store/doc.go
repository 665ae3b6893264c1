// Package store provides SQLite-backed durable storage for record logs.
//
// The store holds one append-only table of encrypted records. Each
// (host, tag) pair is an independent log whose idx runs 0, 1, 2, … with no
// gaps and no repeats. Records are never updated or deleted.
//
// # Critical Patterns
//
// Append-if-next
//   - Append reads the log's head and inserts in one IMMEDIATE transaction
//   - rec.Idx must equal head+1 (or 0) and rec.Timestamp must advance the head
//   - PRIMARY KEY(host_id, tag, idx) is the backstop, not the mechanism
//   - Violations return ConflictError; callers recompute and retry
//
// Deterministic replay order
//   - Scan orders by timestamp ASC, host_id ASC COLLATE BINARY, idx ASC
//   - Identical record sets produce identical sequences on every host
//
// No payload access
//   - The store never decrypts; data is an opaque ciphertext token
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: Transactions take the write lock on BEGIN
package store
