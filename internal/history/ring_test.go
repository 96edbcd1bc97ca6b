package history

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authsock/authsock/pkg/wire"
)

func envOf(t *testing.T, n int) wire.Envelope {
	t.Helper()
	env, err := wire.NewEnvelope("chat", strconv.Itoa(n))
	require.NoError(t, err)
	return env
}

func TestRingKeepsMostRecent(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(envOf(t, i))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	require.JSONEq(t, `"2"`, string(snap[0].Data))
	require.JSONEq(t, `"4"`, string(snap[2].Data))
}

func TestRingEmptySnapshot(t *testing.T) {
	r := NewRing(4)
	require.Nil(t, r.Snapshot())
	require.Zero(t, r.Len())
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing(0)
	r.Append(envOf(t, 1))
	r.Append(envOf(t, 2))
	require.Equal(t, 1, r.Len())
	require.JSONEq(t, `"2"`, string(r.Snapshot()[0].Data))
}
