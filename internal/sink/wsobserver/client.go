package wsobserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// subscriptions tracks what a client wants to hear about.
type subscriptions struct {
	routines   map[string]bool
	executions map[string]bool
	mu         sync.RWMutex
}

func newSubscriptions() *subscriptions {
	return &subscriptions{routines: make(map[string]bool), executions: make(map[string]bool)}
}

// Client is one live WebSocket connection registered with a Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *Event

	id   string
	subs *subscriptions
}

// NewClient wraps an already-upgraded connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan *Event, sendBufferSize), id: id, subs: newSubscriptions()}
}

// Run starts the client's read and write pumps and blocks until the
// connection closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendResponse(errorResponse("error", "invalid command format"))
			continue
		}
		c.handleCommand(&cmd)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleCommand(cmd *Command) {
	switch cmd.Action {
	case CmdSubscribe:
		if cmd.RoutineID == "" && cmd.ExecutionID == "" {
			c.sendResponse(errorResponse(CmdSubscribe, "routine_id or execution_id required"))
			return
		}
		c.hub.Subscribe(c, cmd.RoutineID, cmd.ExecutionID)
		c.sendResponse(successResponse(CmdSubscribe, "subscribed"))
	case CmdUnsubscribe:
		c.hub.Unsubscribe(c, cmd.RoutineID, cmd.ExecutionID)
		c.sendResponse(successResponse(CmdUnsubscribe, "unsubscribed"))
	default:
		c.sendResponse(errorResponse("error", "unknown command: "+cmd.Action))
	}
}

func (c *Client) sendResponse(resp *Response) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteJSON(resp)
}
