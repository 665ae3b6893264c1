package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/record"
)

var (
	hostA = host.MustParse("01890000-0000-7000-8000-00000000000a")
	hostB = host.MustParse("01890000-0000-7000-8000-00000000000b")
)

// createTestStore creates a new file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with placeholder ciphertext. The store
// never decrypts, so any non-empty data will do.
func createTestRecord(t *testing.T, h host.ID, tag string, idx uint64, ts int64) record.Record {
	t.Helper()
	rec, err := record.New(h, tag, "v1", idx, ts, []byte{byte(idx), 0xEE})
	if err != nil {
		t.Fatalf("record.New() failed: %v", err)
	}
	return rec
}
