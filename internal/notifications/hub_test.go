package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_SendReachesEveryConnectionOfUser(t *testing.T) {
	hub := NewHub()
	a, err := hub.Register("u1", nil)
	require.NoError(t, err)
	b, err := hub.Register("u1", nil)
	require.NoError(t, err)
	other, err := hub.Register("u2", nil)
	require.NoError(t, err)

	env, err := NewEnvelope(EventMessage, map[string]string{"id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Send("u1", env))

	for _, c := range []*Client{a, b} {
		msgs := drain(c)
		require.Len(t, msgs, 1)
		var got Envelope
		require.NoError(t, json.Unmarshal(msgs[0], &got))
		assert.Equal(t, EventMessage, got.Type)
	}
	assert.Empty(t, drain(other))
	assert.Zero(t, hub.Send("nobody", env))

	_ = hub.Shutdown(context.Background())
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("u1", nil)
	require.NoError(t, err)
	assert.True(t, hub.IsOnline("u1"))
	assert.Equal(t, 1, hub.Connections())

	hub.UnregisterClient(c)
	hub.UnregisterClient(c)
	assert.False(t, hub.IsOnline("u1"))
	assert.Zero(t, hub.Connections())

	_, open := <-c.Send
	assert.False(t, open)

	// a late send to a closed client must not panic
	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestHub_PerUserLimit(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register("u1", nil)
		require.NoError(t, err)
	}
	_, err := hub.Register("u1", nil)
	assert.ErrorIs(t, err, ErrUserConnLimit)

	_, err = hub.Register("u2", nil)
	assert.NoError(t, err)
}

func TestHub_ShutdownRefusesNewConnections(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("u1", nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))

	_, open := <-c.Send
	assert.False(t, open)
	assert.Zero(t, hub.Connections())

	_, err = hub.Register("u1", nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("u1", nil)
	require.NoError(t, err)

	for i := 0; i < sendBuffer; i++ {
		c.TrySend([]byte("x"))
	}
	c.TrySend([]byte("overflow"))

	msgs := drain(c)
	assert.Len(t, msgs, sendBuffer)
	for _, m := range msgs {
		assert.NotEqual(t, "overflow", string(m))
	}
}

func TestClient_InboundRateLimit(t *testing.T) {
	hub := NewHub()
	c := NewClient(hub, nil, "u1")

	allowed := 0
	for i := 0; i < inboundBurst*2; i++ {
		if c.Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, inboundBurst)
	assert.Less(t, allowed, inboundBurst*2)
}
