package wsobserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/mbflow/internal/sink"
)

func TestObserver_CreateExecutionBroadcastsStarted(t *testing.T) {
	h := testHub()
	c := NewClient("c1", h, nil)
	h.register <- c
	h.Subscribe(c, "routine-1", "")

	o := NewObserver(h)
	err := o.CreateExecution(context.Background(), sink.CreateExecutionParams{WorkflowID: "routine-1", RunID: "run-1"})

	assert := assert.New(t)
	assert.NoError(err)
	ev := waitEvent(t, c)
	assert.Equal(EventExecutionStarted, ev.Type)
	assert.Equal("routine-1", ev.RoutineID)
}

func TestObserver_StoreNodeResultReportsFailure(t *testing.T) {
	h := testHub()
	c := NewClient("c1", h, nil)
	h.register <- c
	h.Subscribe(c, "routine-1", "")

	o := NewObserver(h)
	start := time.Now()
	err := o.StoreNodeResult(context.Background(), sink.StoreNodeResultParams{
		WorkflowID:  "routine-1",
		NodeID:      "n1",
		Status:      "failed",
		StartedAt:   start,
		CompletedAt: start.Add(200 * time.Millisecond),
		Err:         errors.New("boom"),
	})

	assert.NoError(t, err)
	ev := waitEvent(t, c)
	assert.Equal(t, EventNodeFailed, ev.Type)
	assert.Equal(t, "n1", ev.NodeID)
	assert.Equal(t, "boom", ev.Error)
	assert.Equal(t, int64(200), ev.DurationMs)
}

func TestObserver_UpdateStatusReportsCompletion(t *testing.T) {
	h := testHub()
	c := NewClient("c1", h, nil)
	h.register <- c
	h.Subscribe(c, "routine-1", "")

	o := NewObserver(h)
	err := o.UpdateStatus(context.Background(), sink.UpdateStatusParams{WorkflowID: "routine-1", Status: "completed"})

	assert.NoError(t, err)
	ev := waitEvent(t, c)
	assert.Equal(t, EventExecutionCompleted, ev.Type)
}
