// Package recstore is the type-agnostic facade over the record log.
//
// It is the only place records are created. Push assigns idx and
// timestamp, seals the payload with the record header as additional data,
// and appends it; concurrent pushers on the same (host, tag) resolve
// through append conflicts and retry. Reads return records in the global
// replay order; Open authenticates and decrypts one record.
//
// The facade never interprets plaintext. Typed payloads are the codec's
// job, and projections fold the opened payloads into state.
package recstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/metrics"
	"github.com/roach88/dotlog/internal/record"
	"github.com/roach88/dotlog/internal/seal"
	"github.com/roach88/dotlog/internal/store"
)

const (
	// DefaultMaxSize is the largest plaintext Push accepts.
	DefaultMaxSize = 1 << 20

	// DefaultMaxRetries is how many append attempts Push makes before
	// giving up on a contended log.
	DefaultMaxRetries = 16
)

// Store pushes and reads encrypted records for one host.
//
// Thread-safety: Store is safe for concurrent use. Concurrent pushes to the
// same tag are serialized by the underlying store's append check.
type Store struct {
	db         *store.Store
	sealer     *seal.Sealer
	host       host.ID
	clock      Clock
	maxSize    int
	maxRetries int
	maxSkew    time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the wall clock used for new timestamps.
//
// Default: SystemClock
func WithClock(c Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithMaxSize sets the largest plaintext Push accepts.
//
// Default: 1 MiB (DefaultMaxSize)
func WithMaxSize(n int) Option {
	return func(s *Store) {
		s.maxSize = n
	}
}

// WithMaxRetries sets how many append attempts Push makes.
//
// Default: 16 (DefaultMaxRetries)
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		s.maxRetries = n
	}
}

// WithMaxClockSkew makes Import reject records timestamped more than d
// ahead of the local clock.
//
// Default: 0, no limit beyond MaxTimestamp
func WithMaxClockSkew(d time.Duration) Option {
	return func(s *Store) {
		s.maxSkew = d
	}
}

// WithMetrics records push, import and open outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a facade writing as self over db with the shared key.
func New(db *store.Store, key seal.Key, self host.ID, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("recstore: nil store")
	}
	if self.IsNil() {
		return nil, &ValidationError{Field: "host", Message: "nil host id"}
	}
	sealer, err := seal.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("recstore: %w", err)
	}

	s := &Store{
		db:         db,
		sealer:     sealer,
		host:       self,
		clock:      SystemClock{},
		maxSize:    DefaultMaxSize,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxRetries < 1 {
		s.maxRetries = 1
	}
	return s, nil
}

// Host returns the host this facade writes as.
func (s *Store) Host() host.ID {
	return s.host
}

// Push seals plaintext and appends it as the next record of this host's
// log for tag.
//
// Arguments are validated before any crypto or storage work. If another
// writer appends to the same log between reading the head and appending,
// Push recomputes idx and timestamp and tries again, up to the configured
// number of attempts. Cancelling ctx stops the loop; no partial record is
// ever stored.
func (s *Store) Push(ctx context.Context, tag string, plaintext []byte, version string) (record.Record, error) {
	if err := s.validatePush(tag, plaintext, version); err != nil {
		return record.Record{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return record.Record{}, err
		}

		rec, err := s.pushOnce(ctx, tag, plaintext, version)
		if err == nil {
			s.metrics.ObservePush(tag, len(plaintext))
			s.logger.Debug("record pushed",
				"host", s.host.String(),
				"tag", tag,
				"idx", rec.Idx,
				"timestamp", rec.Timestamp,
				"attempt", attempt)
			return rec, nil
		}
		if !errors.Is(err, store.ErrAppendConflict) {
			return record.Record{}, fmt.Errorf("push %s: %w", tag, err)
		}

		lastErr = err
		s.metrics.IncConflict(tag, attempt < s.maxRetries)
		s.logger.Debug("append conflict, retrying",
			"tag", tag,
			"attempt", attempt,
			"error", err)
	}

	s.logger.Warn("push gave up after repeated conflicts",
		"tag", tag,
		"attempts", s.maxRetries)
	return record.Record{}, fmt.Errorf("push %s: gave up after %d attempts: %w", tag, s.maxRetries, lastErr)
}

// pushOnce makes one attempt: read heads, build the header, seal, append.
func (s *Store) pushOnce(ctx context.Context, tag string, plaintext []byte, version string) (record.Record, error) {
	head, ok, err := s.db.Head(ctx, s.host, tag)
	if err != nil {
		return record.Record{}, err
	}
	tagMax, err := s.db.MaxTimestamp(ctx, tag)
	if err != nil {
		return record.Record{}, err
	}

	hdr := record.Header{
		Host:    s.host,
		Tag:     tag,
		Version: version,
	}
	var ownLast int64
	if ok {
		hdr.Idx = head.Idx + 1
		ownLast = head.Timestamp
	}
	hdr.Timestamp, err = nextTimestamp(s.clock.Now(), ownLast, tagMax)
	if err != nil {
		return record.Record{}, err
	}

	token, err := s.sealer.Wrap(plaintext, hdr.AAD())
	if err != nil {
		return record.Record{}, err
	}
	rec, err := record.New(hdr.Host, hdr.Tag, hdr.Version, hdr.Idx, hdr.Timestamp, token)
	if err != nil {
		return record.Record{}, err
	}

	if err := s.db.Append(ctx, rec); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

func (s *Store) validatePush(tag string, plaintext []byte, version string) error {
	switch {
	case tag == "":
		return &ValidationError{Field: "tag", Message: "must not be empty"}
	case version == "":
		return &ValidationError{Field: "version", Message: "must not be empty"}
	case len(plaintext) > s.maxSize:
		return &ValidationError{
			Field:   "data",
			Message: fmt.Sprintf("%d bytes exceeds maximum of %d", len(plaintext), s.maxSize),
		}
	}
	return nil
}

// Last returns the last idx of host's log for tag. ok is false if the log
// is empty.
func (s *Store) Last(ctx context.Context, h host.ID, tag string) (idx uint64, ok bool, err error) {
	return s.db.Last(ctx, h, tag)
}

// AllTagged returns every record for tag from every host, oldest first in
// the global replay order.
func (s *Store) AllTagged(ctx context.Context, tag string) ([]record.Record, error) {
	recs, err := s.db.Scan(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tag, err)
	}
	return recs, nil
}

// Export returns the records of tag in replay order, still sealed, for
// transfer to another host. An empty tag exports every tag.
func (s *Store) Export(ctx context.Context, tag string) ([]record.Record, error) {
	if tag != "" {
		return s.AllTagged(ctx, tag)
	}
	tags, err := s.db.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	out := []record.Record{}
	for _, t := range tags {
		recs, err := s.AllTagged(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Open authenticates rec and returns its plaintext. Any change to the
// ciphertext or header, or the wrong key, fails with seal.ErrAuthentication.
func (s *Store) Open(rec record.Record) ([]byte, error) {
	plaintext, err := s.sealer.Unwrap(rec.Data, rec.AAD())
	if err != nil {
		s.metrics.IncAuthFailure(rec.Tag)
		return nil, fmt.Errorf("open %s: %w", rec, err)
	}
	return plaintext, nil
}

// Status returns a summary of every log held locally.
func (s *Store) Status(ctx context.Context) ([]store.LogStatus, error) {
	return s.db.Status(ctx)
}
