package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case data := <-c.Send:
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	default:
		t.Fatal("no frame queued")
		return Frame{}
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	a, err := hub.Register(nil)
	require.NoError(t, err)
	b, err := hub.Register(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Count())

	hub.Broadcast(FrameFeedChanged, map[string]uint64{"version": 3})
	for _, c := range []*Client{a, b} {
		f := readFrame(t, c)
		assert.Equal(t, FrameFeedChanged, f.Type)
		assert.Equal(t, map[string]any{"version": float64(3)}, f.Payload)
	}

	hub.UnregisterClient(a)
	hub.UnregisterClient(a)
	assert.Equal(t, 1, hub.Count())
	_, open := <-a.Send
	assert.False(t, open)
}

func TestHub_WireSignal(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c, err := hub.Register(nil)
	require.NoError(t, err)

	s := NewSignal()
	hub.WireSignal(s)
	s.Increment()
	s.Reset()

	f := readFrame(t, c)
	assert.Equal(t, FrameNewPosts, f.Type)
	assert.Equal(t, map[string]any{"count": float64(1)}, f.Payload)
	f = readFrame(t, c)
	assert.Equal(t, map[string]any{"count": float64(0)}, f.Payload)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	c, err := hub.Register(nil)
	require.NoError(t, err)

	for i := 0; i < cap(c.Send)+5; i++ {
		c.TrySend([]byte(`{"type":"x"}`))
	}
	assert.Len(t, c.Send, cap(c.Send))

	hub.UnregisterClient(c)
	assert.NotPanics(t, func() { c.TrySend([]byte(`{}`)) })
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	_, err := hub.Register(nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Zero(t, hub.Count())

	_, err = hub.Register(nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_ConnectionLimit(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	for i := 0; i < maxUIConns; i++ {
		_, err := hub.Register(nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(nil)
	assert.Error(t, err)
}
