package recstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/dotlog/internal/record"
	"github.com/roach88/dotlog/internal/store"
)

// ImportResult summarizes an Import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Import appends records produced by other hosts and received out of band.
//
// Records may arrive in any order; they are applied per log in idx order.
// A record already present with identical content is skipped, so importing
// the same file twice is a no-op. A different record at an existing
// position, or a gap in a log, is an append conflict. Records claiming this
// host are only accepted if already present: this host's log is written by
// Push alone. Every new record must authenticate under the shared key.
//
// The import is atomic: either every new record is appended or none is.
func (s *Store) Import(ctx context.Context, recs []record.Record) (ImportResult, error) {
	sorted := make([]record.Record, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := a.Host.Compare(b.Host); c != 0 {
			return c < 0
		}
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		return a.Idx < b.Idx
	})

	var (
		result   ImportResult
		pending  []record.Record
		imported = map[string]int{}
		skipped  = map[string]int{}
	)
	for i, rec := range sorted {
		if err := rec.Validate(); err != nil {
			return ImportResult{}, fmt.Errorf("import: %w", err)
		}
		if i > 0 && sameSlot(sorted[i-1], rec) {
			if record.Equal(sorted[i-1], rec) {
				result.Skipped++
				skipped[rec.Tag]++
				continue
			}
			return ImportResult{}, &store.ConflictError{
				Host: rec.Host, Tag: rec.Tag, Idx: rec.Idx, Expected: rec.Idx,
				Reason: "two different records for one position in import",
			}
		}

		existing, ok, err := s.db.Get(ctx, rec.Host, rec.Tag, rec.Idx)
		if err != nil {
			return ImportResult{}, fmt.Errorf("import: %w", err)
		}
		if ok {
			if !record.Equal(existing, rec) {
				return ImportResult{}, &store.ConflictError{
					Host: rec.Host, Tag: rec.Tag, Idx: rec.Idx, Expected: rec.Idx,
					Reason: "a different record is already stored at this idx",
				}
			}
			result.Skipped++
			skipped[rec.Tag]++
			continue
		}

		if rec.Host == s.host {
			return ImportResult{}, &ValidationError{
				Field:   "host",
				Message: fmt.Sprintf("record %s claims the local host but is not in the local log", rec),
			}
		}
		if err := s.checkTimestamp(rec); err != nil {
			return ImportResult{}, fmt.Errorf("import: %w", err)
		}
		if _, err := s.Open(rec); err != nil {
			return ImportResult{}, fmt.Errorf("import: %w", err)
		}

		pending = append(pending, rec)
		imported[rec.Tag]++
	}

	if err := s.db.AppendAll(ctx, pending); err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}
	result.Imported = len(pending)

	for tag, n := range imported {
		s.metrics.ObserveImport(tag, n, skipped[tag])
	}
	for tag, n := range skipped {
		if imported[tag] == 0 {
			s.metrics.ObserveImport(tag, 0, n)
		}
	}
	s.logger.Info("records imported",
		"imported", result.Imported,
		"skipped", result.Skipped)
	return result, nil
}

// checkTimestamp rejects a record this host could never push after: one at
// or above MaxTimestamp, or further ahead of the local clock than the
// configured skew.
func (s *Store) checkTimestamp(rec record.Record) error {
	if rec.Timestamp > MaxTimestamp {
		return &ValidationError{
			Field:   "timestamp",
			Message: fmt.Sprintf("record %s at %d is above the maximum %d", rec, rec.Timestamp, MaxTimestamp),
		}
	}
	if s.maxSkew <= 0 {
		return nil
	}
	now := s.clock.Now()
	if now > 0 && rec.Timestamp > now && rec.Timestamp-now > int64(s.maxSkew) {
		return &ValidationError{
			Field: "timestamp",
			Message: fmt.Sprintf("record %s is %s ahead of the local clock (limit %s)",
				rec, time.Duration(rec.Timestamp-now), s.maxSkew),
		}
	}
	return nil
}

func sameSlot(a, b record.Record) bool {
	return a.Host == b.Host && a.Tag == b.Tag && a.Idx == b.Idx
}
