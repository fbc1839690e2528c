package wsobserver

import (
	"sync"

	"github.com/rs/zerolog"
)

// broadcastMsg is one event in flight to the hub's fan-out loop.
type broadcastMsg struct {
	routineID   string
	executionID string
	event       *Event
}

// Hub owns the set of connected clients and routes events to the ones
// subscribed to a routine or execution. Grounded on the same
// register/unregister/broadcast channel loop the teacher uses for its
// own websocket hub, generalized from workflow/execution ids to
// routine/execution ids.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byRoutineID   map[string]map[*Client]bool
	byExecutionID map[string]map[*Client]bool

	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewHub creates an idle Hub. Call Run in a goroutine to start it.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *broadcastMsg, 256),
		byRoutineID:   make(map[string]map[*Client]bool),
		byExecutionID: make(map[string]map[*Client]bool),
		logger:        logger,
	}
}

// Run is the hub's event loop; it never returns, so the caller always
// runs it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.logger.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client registered")
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	c.subs.mu.RLock()
	for rid := range c.subs.routines {
		if clients, ok := h.byRoutineID[rid]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.byRoutineID, rid)
			}
		}
	}
	for eid := range c.subs.executions {
		if clients, ok := h.byExecutionID[eid]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.byExecutionID, eid)
			}
		}
	}
	c.subs.mu.RUnlock()
	h.logger.Debug().Str("client_id", c.id).Msg("websocket client unregistered")
}

// Broadcast queues event for delivery to every client subscribed to
// routineID or executionID.
func (h *Hub) Broadcast(routineID, executionID string, event *Event) {
	h.broadcast <- &broadcastMsg{routineID: routineID, executionID: executionID, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	if msg.executionID != "" {
		for c := range h.byExecutionID[msg.executionID] {
			targets[c] = true
		}
	}
	if msg.routineID != "" {
		for c := range h.byRoutineID[msg.routineID] {
			targets[c] = true
		}
	}

	for c := range targets {
		select {
		case c.send <- msg.event:
		default:
			h.logger.Warn().Str("client_id", c.id).Str("event_type", msg.event.Type).Msg("websocket client buffer full, dropping event")
		}
	}
}

// Subscribe records that client wants events for routineID/executionID.
func (h *Hub) Subscribe(c *Client, routineID, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subs.mu.Lock()
	defer c.subs.mu.Unlock()

	if routineID != "" {
		c.subs.routines[routineID] = true
		if h.byRoutineID[routineID] == nil {
			h.byRoutineID[routineID] = make(map[*Client]bool)
		}
		h.byRoutineID[routineID][c] = true
	}
	if executionID != "" {
		c.subs.executions[executionID] = true
		if h.byExecutionID[executionID] == nil {
			h.byExecutionID[executionID] = make(map[*Client]bool)
		}
		h.byExecutionID[executionID][c] = true
	}
}

// Unsubscribe reverses Subscribe.
func (h *Hub) Unsubscribe(c *Client, routineID, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subs.mu.Lock()
	defer c.subs.mu.Unlock()

	if routineID != "" {
		delete(c.subs.routines, routineID)
		if clients, ok := h.byRoutineID[routineID]; ok {
			delete(clients, c)
		}
	}
	if executionID != "" {
		delete(c.subs.executions, executionID)
		if clients, ok := h.byExecutionID[executionID]; ok {
			delete(clients, c)
		}
	}
}

// ClientCount reports the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
