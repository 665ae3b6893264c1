package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dotlog/internal/host"
)

func TestHostID_OrderedAndValid(t *testing.T) {
	a, b := HostID(1), HostID(2)
	assert.False(t, a.IsNil())
	assert.Equal(t, -1, a.Compare(b))

	parsed, err := host.Parse(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestKey_Deterministic(t *testing.T) {
	assert.Equal(t, Key(7), Key(7))
	assert.NotEqual(t, Key(7), Key(8))
}

func TestFixedHostGenerator(t *testing.T) {
	gen := NewFixedHostGenerator(HostID(1), HostID(2))
	assert.Equal(t, HostID(1), gen.Generate())
	assert.Equal(t, HostID(2), gen.Generate())
	assert.Equal(t, HostID(2), gen.Generate())

	assert.Equal(t, HostID(1), NewFixedHostGenerator().Generate())
}

func TestOpenStore(t *testing.T) {
	s := OpenStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
