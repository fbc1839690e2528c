package wsobserver

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub() *Hub {
	h := NewHub(zerolog.Nop())
	go h.Run()
	return h
}

func waitEvent(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastByRoutineID(t *testing.T) {
	h := testHub()
	c := NewClient("c1", h, nil)
	h.register <- c
	h.Subscribe(c, "routine-1", "")

	h.Broadcast("routine-1", "", newEvent(EventExecutionStarted, "routine-1", ""))

	ev := waitEvent(t, c)
	assert.Equal(t, EventExecutionStarted, ev.Type)
	assert.Equal(t, "routine-1", ev.RoutineID)
}

func TestHub_BroadcastByExecutionID(t *testing.T) {
	h := testHub()
	c := NewClient("c1", h, nil)
	h.register <- c
	h.Subscribe(c, "", "exec-1")

	h.Broadcast("", "exec-1", newEvent(EventExecutionCompleted, "", "exec-1"))

	ev := waitEvent(t, c)
	assert.Equal(t, EventExecutionCompleted, ev.Type)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := testHub()
	c := NewClient("c1", h, nil)
	h.register <- c
	h.Subscribe(c, "routine-1", "")
	h.Unsubscribe(c, "routine-1", "")

	h.Broadcast("routine-1", "", newEvent(EventExecutionStarted, "routine-1", ""))

	assertNoEvent(t, c)
}

func TestHub_UnregisterRemovesFromSubscriptions(t *testing.T) {
	h := testHub()
	c := NewClient("c1", h, nil)
	h.register <- c
	h.Subscribe(c, "routine-1", "")

	h.unregister <- c

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, ok := h.byRoutineID["routine-1"]
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestHub_ClientCount(t *testing.T) {
	h := testHub()
	c1 := NewClient("c1", h, nil)
	c2 := NewClient("c2", h, nil)
	h.register <- c1
	h.register <- c2

	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	h.unregister <- c1
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}
