package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(h *Hub, runID string, buffer int) *Client {
	return &Client{ID: "client-" + runID, hub: h, runID: runID, send: make(chan *WebMessage, buffer)}
}

func receive(t *testing.T, c *Client) *WebMessage {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHubDeliversByRun(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	all := newHubClient(h, "", 4)
	one := newHubClient(h, "run-b", 4)
	h.Register(all)
	h.Register(one)

	h.Broadcast(&WebMessage{Type: MessageTypeProgress, RunID: "run-a"})
	h.Broadcast(&WebMessage{Type: MessageTypeProgress, RunID: "run-b"})

	assert.Equal(t, "run-a", receive(t, all).RunID)
	assert.Equal(t, "run-b", receive(t, all).RunID)
	assert.Equal(t, "run-b", receive(t, one).RunID)
	assert.Len(t, one.send, 0)
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	slow := newHubClient(h, "", 1)
	h.Register(slow)
	require.Equal(t, 1, h.ClientCount())

	h.Broadcast(&WebMessage{Type: MessageTypeProgress, RunID: "run-a"})
	h.Broadcast(&WebMessage{Type: MessageTypeProgress, RunID: "run-a"})

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "run-a", receive(t, slow).RunID)
	_, ok := <-slow.send
	assert.False(t, ok, "send channel is closed after the drop")
}
