package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dotlog/internal/record"
)

// Append inserts rec as the next record of its (host, tag) log.
//
// The idx read and the insert run in one IMMEDIATE transaction. Append
// succeeds only if rec.Idx is one past the current last idx (or 0 for an
// empty log) and rec.Timestamp is later than the current last timestamp;
// otherwise it returns a ConflictError. A primary key violation is also
// reported as a ConflictError, as a backstop.
//
// Cancelling ctx rolls the transaction back; no partial record is visible.
func (s *Store) Append(ctx context.Context, rec record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "append: begin tx", Err: err}
	}
	defer tx.Rollback() // No-op if committed

	if err := appendTx(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "append: commit", Err: err}
	}
	return nil
}

// AppendAll appends recs in order inside a single transaction. Either every
// record is appended or none is. Records for the same (host, tag) must be
// given in idx order.
func (s *Store) AppendAll(ctx context.Context, recs []record.Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "append all: begin tx", Err: err}
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if err := appendTx(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "append all: commit", Err: err}
	}
	return nil
}

// appendTx performs the compare-and-append inside tx.
func appendTx(ctx context.Context, tx *sql.Tx, rec record.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if len(rec.Data) == 0 {
		return fmt.Errorf("append: %w: empty data", record.ErrInvalid)
	}

	head, ok, err := headOf(ctx, tx, rec.Host.String(), rec.Tag)
	if err != nil {
		return err
	}

	var expected uint64
	if ok {
		expected = head.Idx + 1
	}
	if rec.Idx != expected {
		return &ConflictError{
			Host:     rec.Host,
			Tag:      rec.Tag,
			Idx:      rec.Idx,
			Expected: expected,
			Reason:   "idx is not next",
		}
	}
	if ok && rec.Timestamp <= head.Timestamp {
		return &ConflictError{
			Host:     rec.Host,
			Tag:      rec.Tag,
			Idx:      rec.Idx,
			Expected: expected,
			Reason:   fmt.Sprintf("timestamp %d does not advance past %d", rec.Timestamp, head.Timestamp),
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(host_id, tag, idx, version, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.Host.String(),
		rec.Tag,
		int64(rec.Idx),
		rec.Version,
		rec.Timestamp,
		rec.Data,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{
				Host:     rec.Host,
				Tag:      rec.Tag,
				Idx:      rec.Idx,
				Expected: expected,
				Reason:   "idx already exists",
			}
		}
		return &StorageError{Op: "append: insert", Err: err}
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// headOf returns the last idx and timestamp of one log.
func headOf(ctx context.Context, q queryer, hostID, tag string) (Head, bool, error) {
	var idx, ts sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT idx, timestamp FROM records
		WHERE host_id = ? AND tag = ?
		ORDER BY idx DESC
		LIMIT 1
	`, hostID, tag).Scan(&idx, &ts)
	if err == sql.ErrNoRows {
		return Head{}, false, nil
	}
	if err != nil {
		return Head{}, false, &StorageError{Op: "read head", Err: err}
	}
	return Head{Idx: uint64(idx.Int64), Timestamp: ts.Int64}, true, nil
}
