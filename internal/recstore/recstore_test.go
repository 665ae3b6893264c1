package recstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/metrics"
	"github.com/roach88/dotlog/internal/record"
	"github.com/roach88/dotlog/internal/seal"
	"github.com/roach88/dotlog/internal/store"
	"github.com/roach88/dotlog/internal/testutil"
)

var (
	hostA = testutil.HostID(1)
	hostB = testutil.HostID(2)
)

func newTestFacade(t *testing.T, db *store.Store, h host.ID, opts ...Option) *Store {
	t.Helper()
	s, err := New(db, testutil.Key(0x42), h, opts...)
	require.NoError(t, err)
	return s
}

func TestNew_RejectsNilHost(t *testing.T) {
	_, err := New(testutil.OpenStore(t), testutil.Key(1), host.Nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPush_Monotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t, testutil.OpenStore(t), hostA,
		WithClock(testutil.NewDeterministicClock(1000, 10)))

	var prev record.Record
	for i := uint64(0); i < 5; i++ {
		rec, err := s.Push(ctx, "t", []byte{byte(i)}, "v0")
		require.NoError(t, err)
		assert.Equal(t, i, rec.Idx)
		assert.Equal(t, hostA, rec.Host)
		if i > 0 {
			assert.Greater(t, rec.Timestamp, prev.Timestamp)
		}
		prev = rec
	}

	last, ok, err := s.Last(ctx, hostA, "t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), last)
}

func TestPush_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t, testutil.OpenStore(t), hostA)

	rec, err := s.Push(ctx, "t", []byte("hello"), "v0")
	require.NoError(t, err)

	recs, err := s.AllTagged(ctx, "t")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, record.Equal(rec, recs[0]))

	pt, err := s.Open(recs[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)
	assert.NotContains(t, string(recs[0].Data), "hello")
}

func TestPush_TimestampSurvivesClockSkew(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	clockA := testutil.NewDeterministicClock(5000, 1)
	clockB := testutil.NewDeterministicClock(100, 1) // far behind
	a := newTestFacade(t, db, hostA, WithClock(clockA))
	b := newTestFacade(t, db, hostB, WithClock(clockB))

	ra, err := a.Push(ctx, "t", []byte("a"), "v0")
	require.NoError(t, err)
	rb, err := b.Push(ctx, "t", []byte("b"), "v0")
	require.NoError(t, err)
	assert.Greater(t, rb.Timestamp, ra.Timestamp, "a later push must sort after what the host has seen")

	// A's clock going backwards still advances A's own log.
	clockA.Set(1)
	ra2, err := a.Push(ctx, "t", []byte("a2"), "v0")
	require.NoError(t, err)
	assert.Greater(t, ra2.Timestamp, rb.Timestamp)

	recs, err := a.AllTagged(ctx, "t")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []uint64{0, 0, 1}, []uint64{recs[0].Idx, recs[1].Idx, recs[2].Idx})
	assert.Equal(t, []host.ID{hostA, hostB, hostA}, []host.ID{recs[0].Host, recs[1].Host, recs[2].Host})
}

func TestPush_ValidationBeforeCrypto(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t, testutil.OpenStore(t), hostA, WithMaxSize(4))

	tests := []struct {
		name    string
		tag     string
		data    []byte
		version string
		field   string
	}{
		{"empty tag", "", []byte("x"), "v0", "tag"},
		{"empty version", "t", []byte("x"), "", "version"},
		{"oversize", "t", []byte("12345"), "v0", "data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Push(ctx, tt.tag, tt.data, tt.version)
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestPush_EmptyPlaintext(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t, testutil.OpenStore(t), hostA)

	rec, err := s.Push(ctx, "t", nil, "v0")
	require.NoError(t, err)
	pt, err := s.Open(rec)
	require.NoError(t, err)
	assert.Empty(t, pt)
}

func TestPush_CancelledContext(t *testing.T) {
	s := newTestFacade(t, testutil.OpenStore(t), hostA)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Push(ctx, "t", []byte("x"), "v0")
	assert.ErrorIs(t, err, context.Canceled)

	_, ok, err := s.Last(context.Background(), hostA, "t")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPush_ConcurrentWritersOneHost(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Two facades for the same host over one database model two processes.
	s1 := newTestFacade(t, db, hostA, WithMaxRetries(1000), WithMetrics(m))
	s2 := newTestFacade(t, db, hostA, WithMaxRetries(1000), WithMetrics(m))

	const perWriter = 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*perWriter)
	for _, s := range []*Store{s1, s2} {
		wg.Add(1)
		go func(s *Store) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.Push(ctx, "t", []byte{byte(i)}, "v0"); err != nil {
					errs <- err
				}
			}
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("push failed: %v", err)
	}

	recs, err := s1.AllTagged(ctx, "t")
	require.NoError(t, err)
	require.Len(t, recs, 2*perWriter)
	for i, rec := range recs {
		assert.Equal(t, uint64(i), rec.Idx, "idx must be gap free and in timestamp order")
		if i > 0 {
			assert.Greater(t, rec.Timestamp, recs[i-1].Timestamp)
		}
	}
	assert.Equal(t, float64(2*perWriter), promtest.ToFloat64(m.PushesTotal.WithLabelValues("t")))
}

// racingClock appends a competing record for the same log every time it is
// read, so every push attempt loses the race.
type racingClock struct {
	t   *testing.T
	db  *store.Store
	idx uint64
}

func (c *racingClock) Now() int64 {
	rec, err := record.New(hostA, "t", "v0", c.idx, int64(c.idx+1), []byte{0x01})
	require.NoError(c.t, err)
	require.NoError(c.t, c.db.Append(context.Background(), rec))
	c.idx++
	return 1
}

func TestPush_GivesUpAfterRetries(t *testing.T) {
	db := testutil.OpenStore(t)
	s := newTestFacade(t, db, hostA, WithMaxRetries(3),
		WithClock(&racingClock{t: t, db: db}))

	_, err := s.Push(context.Background(), "t", []byte("x"), "v0")
	require.ErrorIs(t, err, store.ErrAppendConflict)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")

	n, err := db.Len(context.Background(), hostA, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n, "only the competing records are stored")
}

func TestPush_StorageErrorNotRetried(t *testing.T) {
	db := testutil.OpenStore(t)
	s := newTestFacade(t, db, hostA)
	require.NoError(t, db.Close())

	_, err := s.Push(context.Background(), "t", []byte("x"), "v0")
	require.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrAppendConflict))
	assert.True(t, store.IsStorageError(err))
}

func TestOpen_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t, testutil.OpenStore(t), hostA)
	rec, err := s.Push(ctx, "t", []byte("secret"), "v0")
	require.NoError(t, err)

	flipped := rec
	flipped.Data = append([]byte(nil), rec.Data...)
	flipped.Data[len(flipped.Data)-1] ^= 0x01

	relabels := map[string]func(r *record.Record){
		"ciphertext": func(r *record.Record) { *r = flipped },
		"host":       func(r *record.Record) { r.Host = hostB },
		"tag":        func(r *record.Record) { r.Tag = "other" },
		"idx":        func(r *record.Record) { r.Idx = 9 },
		"version":    func(r *record.Record) { r.Version = "v1" },
		"timestamp":  func(r *record.Record) { r.Timestamp++ },
	}
	for name, mutate := range relabels {
		t.Run(name, func(t *testing.T) {
			bad := rec
			mutate(&bad)
			_, err := s.Open(bad)
			assert.ErrorIs(t, err, seal.ErrAuthentication)
		})
	}
}

func TestOpen_WrongKey(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenStore(t)
	s := newTestFacade(t, db, hostA)
	rec, err := s.Push(ctx, "t", []byte("secret"), "v0")
	require.NoError(t, err)

	other, err := New(db, testutil.Key(0x99), hostB)
	require.NoError(t, err)
	_, err = other.Open(rec)
	assert.True(t, seal.IsAuthError(err))
}

func TestExport_AllTags(t *testing.T) {
	ctx := context.Background()
	s := newTestFacade(t, testutil.OpenStore(t), hostA)
	_, err := s.Push(ctx, "b", []byte("1"), "v0")
	require.NoError(t, err)
	_, err = s.Push(ctx, "a", []byte("2"), "v0")
	require.NoError(t, err)

	all, err := s.Export(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Tag)
	assert.Equal(t, "b", all[1].Tag)

	onlyB, err := s.Export(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, onlyB, 1)
}

func TestNextTimestamp(t *testing.T) {
	tests := []struct {
		name                 string
		now, ownLast, tagMax int64
		want                 int64
	}{
		{"empty log uses clock", 1000, 0, 0, 1000},
		{"own log ahead", 1000, 2000, 0, 2001},
		{"tag ahead", 1000, 2000, 3000, 3001},
		{"clock ahead", 5000, 2000, 3000, 5000},
		{"zero clock", 0, 0, 0, 1},
		{"one below ceiling", 1, 0, MaxTimestamp - 1, MaxTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextTimestamp(tt.now, tt.ownLast, tt.tagMax)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextTimestamp_NeverWraps(t *testing.T) {
	tests := []struct {
		name                 string
		now, ownLast, tagMax int64
	}{
		{"tag at ceiling", 1000, 0, MaxTimestamp},
		{"tag at max int", 1000, 0, math.MaxInt64},
		{"own log at ceiling", 1000, MaxTimestamp, 0},
		{"clock at max int", math.MaxInt64, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nextTimestamp(tt.now, tt.ownLast, tt.tagMax)
			assert.ErrorIs(t, err, ErrTimestampExhausted)
		})
	}
}
