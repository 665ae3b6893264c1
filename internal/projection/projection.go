// Package projection folds a tag's records into in-memory state.
//
// Records are replayed in the global order returned by the source. Each
// record is opened, decoded by version, and applied to the running state.
// The first record that fails any step aborts the whole projection: a
// partially applied history is never returned.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/dotlog/internal/codec"
	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/metrics"
	"github.com/roach88/dotlog/internal/record"
)

// Source supplies sealed records in replay order and opens them.
// Implemented by *recstore.Store.
type Source interface {
	AllTagged(ctx context.Context, tag string) ([]record.Record, error)
	Open(rec record.Record) ([]byte, error)
}

// Decoder turns a payload of a given version into a typed value.
// Implemented by *codec.Codec.
type Decoder[V any] interface {
	Deserialize(data []byte, version string) (V, error)
}

// ApplyFunc folds one value into the state and returns the new state.
type ApplyFunc[S, V any] func(state S, v V) (S, error)

// Entry is one opened and decoded record.
type Entry[V any] struct {
	Header record.Header
	Value  V
}

// Error identifies the record that stopped a projection.
type Error struct {
	Host host.ID
	Tag  string
	Idx  uint64
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("project %s at %s#%d: %v", e.Tag, e.Host, e.Idx, e.Err)
}

// Unwrap returns the underlying open, decode or apply error.
func (e *Error) Unwrap() error { return e.Err }

// Options configures observability for a projection run.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Project replays every record of tag from src into init.
func Project[S, V any](ctx context.Context, src Source, tag string, dec Decoder[V], init S, apply ApplyFunc[S, V]) (S, error) {
	return ProjectWith(ctx, src, tag, dec, init, apply, Options{})
}

// ProjectWith is Project with metrics and logging.
func ProjectWith[S, V any](ctx context.Context, src Source, tag string, dec Decoder[V], init S, apply ApplyFunc[S, V], opts Options) (S, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	recs, err := src.AllTagged(ctx, tag)
	if err != nil {
		var zero S
		return zero, fmt.Errorf("project %s: %w", tag, err)
	}

	state := init
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			var zero S
			return zero, err
		}
		state, err = step(src, dec, apply, state, rec)
		if err != nil {
			opts.Metrics.ObserveProjection(tag, i, time.Since(start), true)
			if reason := codec.ReasonOf(err); reason != "" {
				opts.Metrics.IncDecodeFailure(tag, string(reason))
			}
			logger.Error("projection aborted",
				"tag", tag,
				"host", rec.Host.String(),
				"idx", rec.Idx,
				"error", err)
			var zero S
			return zero, err
		}
	}

	opts.Metrics.ObserveProjection(tag, len(recs), time.Since(start), false)
	logger.Debug("projection complete", "tag", tag, "records", len(recs))
	return state, nil
}

func step[S, V any](src Source, dec Decoder[V], apply ApplyFunc[S, V], state S, rec record.Record) (S, error) {
	fail := func(err error) (S, error) {
		var zero S
		return zero, &Error{Host: rec.Host, Tag: rec.Tag, Idx: rec.Idx, Err: err}
	}

	plaintext, err := src.Open(rec)
	if err != nil {
		return fail(err)
	}
	v, err := dec.Deserialize(plaintext, rec.Version)
	if err != nil {
		return fail(err)
	}
	next, err := apply(state, v)
	if err != nil {
		return fail(err)
	}
	return next, nil
}

// Fold applies already-decoded entries to init in the order given.
func Fold[S, V any](entries []Entry[V], init S, apply ApplyFunc[S, V]) (S, error) {
	state := init
	for _, e := range entries {
		var err error
		state, err = apply(state, e.Value)
		if err != nil {
			var zero S
			return zero, &Error{Host: e.Header.Host, Tag: e.Header.Tag, Idx: e.Header.Idx, Err: err}
		}
	}
	return state, nil
}
