// Package wsobserver is a Sink that fans execution events out to
// subscribed WebSocket clients in real time, alongside whatever
// durable sink (e.g. postgres) also records the run.
package wsobserver

import "time"

// Event types (server -> client).
const (
	EventExecutionStarted   = "execution.started"
	EventExecutionCompleted = "execution.completed"
	EventExecutionFailed    = "execution.failed"
	EventNodeStarted        = "node.started"
	EventNodeCompleted      = "node.completed"
	EventNodeFailed         = "node.failed"
)

// Command types (client -> server).
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// Event is a message pushed from server to client.
type Event struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RoutineID   string    `json:"routine_id"`
	ExecutionID string    `json:"execution_id"`

	NodeID     string `json:"node_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Command is a message sent from client to server.
type Command struct {
	Action      string `json:"action"`
	ExecutionID string `json:"execution_id,omitempty"`
	RoutineID   string `json:"routine_id,omitempty"`
}

// Response answers a Command.
type Response struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newEvent(eventType, routineID, executionID string) *Event {
	return &Event{Type: eventType, Timestamp: time.Now(), RoutineID: routineID, ExecutionID: executionID}
}

func successResponse(responseType, message string) *Response {
	return &Response{Type: responseType, Success: true, Message: message}
}

func errorResponse(responseType, errMsg string) *Response {
	return &Response{Type: responseType, Success: false, Error: errMsg}
}
