package testutil

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/dotlog/internal/host"
	"github.com/roach88/dotlog/internal/seal"
	"github.com/roach88/dotlog/internal/store"
)

// HostID returns a deterministic UUIDv7-shaped host id ending in n.
// HostID(1) < HostID(2) in host order.
func HostID(n byte) host.ID {
	var id host.ID
	id[0], id[1] = 0x01, 0x89
	id[6] = 0x70
	id[8] = 0x80
	id[15] = n
	return id
}

// Key returns a deterministic shared key filled with b.
func Key(b byte) seal.Key {
	var k seal.Key
	for i := range k {
		k[i] = b
	}
	return k
}

// FixedHostGenerator returns the given ids in order, then repeats the last.
//
// Thread-safety: safe for concurrent use.
type FixedHostGenerator struct {
	mu  sync.Mutex
	ids []host.ID
	i   int
}

// NewFixedHostGenerator creates a generator over ids. With no ids it
// yields HostID(1).
func NewFixedHostGenerator(ids ...host.ID) *FixedHostGenerator {
	if len(ids) == 0 {
		ids = []host.ID{HostID(1)}
	}
	return &FixedHostGenerator{ids: ids}
}

// Generate implements host.Generator.
func (g *FixedHostGenerator) Generate() host.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[g.i]
	if g.i < len(g.ids)-1 {
		g.i++
	}
	return id
}

// OpenStore opens a file-backed store in a temp directory and closes it
// when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
