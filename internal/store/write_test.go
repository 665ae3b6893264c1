package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dotlog/internal/record"
)

func TestAppend_Sequential(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := uint64(0); i < 5; i++ {
		require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "t", i, int64(100+i))))
	}

	n, err := s.Len(ctx, hostA, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	head, ok, err := s.Head(ctx, hostA, "t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Head{Idx: 4, Timestamp: 104}, head)
}

func TestAppend_FirstMustBeZero(t *testing.T) {
	s := createTestStore(t)

	err := s.Append(context.Background(), createTestRecord(t, hostA, "t", 1, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAppendConflict)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint64(0), ce.Expected)
	assert.Equal(t, uint64(1), ce.Idx)
}

func TestAppend_GapRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "t", 0, 10)))

	err := s.Append(ctx, createTestRecord(t, hostA, "t", 2, 20))
	assert.True(t, IsConflict(err))
}

func TestAppend_DuplicateRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "t", 0, 10)))

	err := s.Append(ctx, createTestRecord(t, hostA, "t", 0, 20))
	assert.ErrorIs(t, err, ErrAppendConflict)

	n, err := s.Len(ctx, hostA, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestAppend_TimestampMustAdvance(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "t", 0, 10)))

	err := s.Append(ctx, createTestRecord(t, hostA, "t", 1, 10))
	assert.ErrorIs(t, err, ErrAppendConflict)

	require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "t", 1, 11)))
}

func TestAppend_LogsAreIndependent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Same idx on different hosts and different tags never collide.
	require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "t", 0, 10)))
	require.NoError(t, s.Append(ctx, createTestRecord(t, hostB, "t", 0, 10)))
	require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "u", 0, 10)))

	for _, tc := range []struct {
		tag  string
		want int
	}{{"t", 2}, {"u", 1}} {
		recs, err := s.Scan(ctx, tc.tag)
		require.NoError(t, err)
		assert.Len(t, recs, tc.want)
	}
}

func TestAppend_InvalidRecord(t *testing.T) {
	s := createTestStore(t)
	err := s.Append(context.Background(), record.Record{})
	assert.ErrorIs(t, err, record.ErrInvalid)
}

func TestAppend_CancelledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Append(ctx, createTestRecord(t, hostA, "t", 0, 10))
	require.Error(t, err)

	_, ok, err := s.Last(context.Background(), hostA, "t")
	require.NoError(t, err)
	assert.False(t, ok, "cancelled append must not leave a record")
}

func TestAppend_RaceExactlyOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, createTestRecord(t, hostA, "t", 0, 10)))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Every writer computed idx 1 from the same head.
			err := s.Append(ctx, createTestRecord(t, hostA, "t", 1, int64(20+w)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAppendConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	n, err := s.Len(ctx, hostA, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestAppendAll_Atomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	batch := []record.Record{
		createTestRecord(t, hostB, "t", 0, 10),
		createTestRecord(t, hostB, "t", 1, 20),
		createTestRecord(t, hostB, "t", 3, 30), // gap
	}
	err := s.AppendAll(ctx, batch)
	assert.ErrorIs(t, err, ErrAppendConflict)

	n, err := s.Len(ctx, hostB, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n, "failed batch must roll back entirely")

	require.NoError(t, s.AppendAll(ctx, batch[:2]))
	n, err = s.Len(ctx, hostB, "t")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	assert.NoError(t, s.AppendAll(ctx, nil))
}
