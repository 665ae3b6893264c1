package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/record"
)

// Head is the position of the newest record in one (host, tag) log.
type Head struct {
	Idx       uint64
	Timestamp int64
}

// Head returns the newest idx and timestamp of the (host, tag) log.
// ok is false when the log is empty.
func (s *Store) Head(ctx context.Context, h host.ID, tag string) (Head, bool, error) {
	return headOf(ctx, s.db, h.String(), tag)
}

// Last returns the newest idx of the (host, tag) log, or ok=false if the
// log is empty.
func (s *Store) Last(ctx context.Context, h host.ID, tag string) (uint64, bool, error) {
	head, ok, err := s.Head(ctx, h, tag)
	if err != nil || !ok {
		return 0, false, err
	}
	return head.Idx, true, nil
}

// MaxTimestamp returns the largest timestamp of any record carrying tag,
// across all hosts, or 0 when there is none.
func (s *Store) MaxTimestamp(ctx context.Context, tag string) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(timestamp), 0) FROM records WHERE tag = ?
	`, tag).Scan(&ts)
	if err != nil {
		return 0, &StorageError{Op: "max timestamp", Err: err}
	}
	return ts, nil
}

// Scan returns every record carrying tag, across all hosts, in global
// order: timestamp ASC, host_id ASC, idx ASC.
//
// Returns an empty slice (not nil) if no records exist for the tag.
func (s *Store) Scan(ctx context.Context, tag string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host_id, tag, idx, version, timestamp, data
		FROM records
		WHERE tag = ?
		ORDER BY timestamp ASC, host_id COLLATE BINARY ASC, idx ASC
	`, tag)
	if err != nil {
		return nil, &StorageError{Op: "scan", Err: err}
	}
	return collectRecords(rows, "scan")
}

// ScanLog returns the records of one (host, tag) log in idx order,
// starting at idx from.
func (s *Store) ScanLog(ctx context.Context, h host.ID, tag string, from uint64) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host_id, tag, idx, version, timestamp, data
		FROM records
		WHERE host_id = ? AND tag = ? AND idx >= ?
		ORDER BY idx ASC
	`, h.String(), tag, int64(from))
	if err != nil {
		return nil, &StorageError{Op: "scan log", Err: err}
	}
	return collectRecords(rows, "scan log")
}

// Get returns one record by its coordinates.
func (s *Store) Get(ctx context.Context, h host.ID, tag string, idx uint64) (record.Record, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host_id, tag, idx, version, timestamp, data
		FROM records
		WHERE host_id = ? AND tag = ? AND idx = ?
	`, h.String(), tag, int64(idx))
	if err != nil {
		return record.Record{}, false, &StorageError{Op: "get", Err: err}
	}
	recs, err := collectRecords(rows, "get")
	if err != nil {
		return record.Record{}, false, err
	}
	if len(recs) == 0 {
		return record.Record{}, false, nil
	}
	return recs[0], true, nil
}

// Len returns the number of records in the (host, tag) log.
func (s *Store) Len(ctx context.Context, h host.ID, tag string) (uint64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE host_id = ? AND tag = ?
	`, h.String(), tag).Scan(&n)
	if err != nil {
		return 0, &StorageError{Op: "len", Err: err}
	}
	return uint64(n), nil
}

// collectRecords scans every row and closes rows.
func collectRecords(rows *sql.Rows, op string) ([]record.Record, error) {
	defer rows.Close()

	recs := []record.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: op, Err: err}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: op + ": iterate", Err: err}
	}
	return recs, nil
}

// scanRecord reads one row into a Record.
func scanRecord(rows *sql.Rows) (record.Record, error) {
	var (
		hostID, tag, version string
		idx, ts              int64
		data                 []byte
	)
	if err := rows.Scan(&hostID, &tag, &idx, &version, &ts, &data); err != nil {
		return record.Record{}, fmt.Errorf("scan record: %w", err)
	}
	h, err := host.Parse(hostID)
	if err != nil {
		return record.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec, err := record.New(h, tag, version, uint64(idx), ts, data)
	if err != nil {
		return record.Record{}, fmt.Errorf("scan record %s/%s#%d: %w", hostID, tag, idx, err)
	}
	return rec, nil
}
