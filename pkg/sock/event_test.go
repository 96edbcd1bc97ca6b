package sock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authsock/authsock/pkg/wire"
)

func TestListenerDispatchOrder(t *testing.T) {
	var set listenerSet
	var order []string
	set.on("x", func(*Event) { order = append(order, "first") })
	set.on("x", func(*Event) { order = append(order, "second") })

	proceed := set.dispatch(wire.Envelope{Type: "x"})
	require.True(t, proceed)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestListenerCancelSuppressesInternalHandling(t *testing.T) {
	var set listenerSet
	set.on(wire.TypePing, func(ev *Event) { ev.Cancel() })

	require.False(t, set.dispatch(wire.Envelope{Type: wire.TypePing}))
	require.True(t, set.dispatch(wire.Envelope{Type: wire.TypePong}))
}

func TestDispatchWithoutListenersProceeds(t *testing.T) {
	var set listenerSet
	require.True(t, set.dispatch(wire.Envelope{Type: "anything"}))
}
