package realtime

import (
	"testing"
	"time"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestEmitBeforeConnect(t *testing.T) {
	t.Parallel()

	c := NewClient("http://example", "token")
	require.ErrorIs(t, c.Emit(wire.EventTypingStart, map[string]any{"chatId": 1}), ErrNotConnected)
	require.False(t, c.IsConnected())
	require.False(t, c.WaitForConnect(10*time.Millisecond))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestDispatchRunsHandlersInRegistrationOrder(t *testing.T) {
	t.Parallel()

	c := NewClient("http://example", "token")
	var got []string
	c.On(wire.EventUserOnline, func(payload any) { got = append(got, "first") })
	c.On(wire.EventUserOnline, func(payload any) { got = append(got, "second") })
	c.On(wire.EventTypingStop, func(payload any) { got = append(got, "other") })

	c.dispatch(wire.EventUserOnline, map[string]any{"userId": float64(2), "isOnline": true})
	require.Equal(t, []string{"first", "second"}, got)
}

func TestOnEventDecodesPayload(t *testing.T) {
	t.Parallel()

	c := NewClient("http://example", "token")
	var got []wire.CallPeerPayload
	OnEvent(c, wire.EventCallEnded, func(p wire.CallPeerPayload) { got = append(got, p) })

	c.dispatch(wire.EventCallEnded, map[string]any{"userId": float64(7)})
	c.dispatch(wire.EventCallEnded, map[string]any{"userId": "not a number"})

	require.Equal(t, []wire.CallPeerPayload{{UserID: 7}}, got)
}
