// Package state implements the Execution State of spec §4.3: the
// mutable, per-run record of outputs, execution path, loop counters,
// and node scratch bags. It is owned exclusively by the Scheduler.
package state

import (
	"sync"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

// PathEntry is one `(nodeId, runIndex)` record in completion order.
type PathEntry struct {
	NodeID   string
	RunIndex int
}

// LoopState is the bookkeeping record for one loop edge:
// `{iteration, maxIterations, accumulator, startedAt}`.
type LoopState struct {
	Iteration     int
	MaxIterations int
	Accumulator   map[string]any
	StartedAt     time.Time
}

// NodeResult is the recorded outcome of one completed task.
type NodeResult struct {
	NodeID    string
	Key       Key
	Outputs   domain.PortSet
	Branch    string
	HasBranch bool
}

// State is the Execution State. All mutation goes through its methods,
// which are safe for concurrent use by the Scheduler's parallel
// dispatch.
type State struct {
	mu sync.Mutex

	nodeOutputs map[string]domain.PortSet // keyed by Key.String()
	results     map[string]NodeResult
	executed    map[string]struct{}
	running     map[string]struct{}
	executionPath []PathEntry
	runIndex    map[string]int // per nodeId, count of completed runs
	loopStates  map[string]*LoopState // keyed by loop edge id
	nodeStates  map[string]any // per nodeId, stable scratch bag
	errs        map[string]*engerrors.EngineError // keyed by Key.String()
}

// New creates an empty Execution State for one execute() call.
func New() *State {
	return &State{
		nodeOutputs: make(map[string]domain.PortSet),
		results:     make(map[string]NodeResult),
		executed:    make(map[string]struct{}),
		running:     make(map[string]struct{}),
		runIndex:    make(map[string]int),
		loopStates:  make(map[string]*LoopState),
		nodeStates:  make(map[string]any),
		errs:        make(map[string]*engerrors.EngineError),
	}
}

// MarkRunning records that a context-key has been dispatched.
func (s *State) MarkRunning(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[key.String()] = struct{}{}
}

// IsRunning reports whether a context-key is currently dispatched.
func (s *State) IsRunning(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[key.String()]
	return ok
}

// IsExecuted reports whether a context-key has completed successfully.
func (s *State) IsExecuted(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.executed[key.String()]
	return ok
}

// HasError reports whether a context-key recorded a terminal error.
func (s *State) HasError(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.errs[key.String()]
	return ok
}

// AddNodeResult appends a completed result for key. Writes are
// monotonic: once a context-key has a recorded output it is not
// overwritten (spec §3, §4.3). A second call for the same key is a
// no-op and returns false.
func (s *State) AddNodeResult(key Key, outputs domain.PortSet, branch string, hasBranch bool) (recorded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := key.String()
	if _, exists := s.nodeOutputs[ks]; exists {
		return false
	}

	s.nodeOutputs[ks] = outputs
	s.results[ks] = NodeResult{NodeID: key.NodeID, Key: key, Outputs: outputs, Branch: branch, HasBranch: hasBranch}
	s.executed[ks] = struct{}{}
	delete(s.running, ks)

	s.runIndex[key.NodeID]++
	s.executionPath = append(s.executionPath, PathEntry{NodeID: key.NodeID, RunIndex: s.runIndex[key.NodeID]})
	return true
}

// RecordError records a terminal failure for key. Once a context-key
// has an error, the Scheduler does not re-enqueue it.
func (s *State) RecordError(key Key, err *engerrors.EngineError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks := key.String()
	s.errs[ks] = err
	delete(s.running, ks)
}

// GetRunIndex returns the number of completed runs of nodeID across all
// contexts.
func (s *State) GetRunIndex(nodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runIndex[nodeID]
}

// ExecutionPath returns a copy of the ordered completion record.
func (s *State) ExecutionPath() []PathEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PathEntry, len(s.executionPath))
	copy(out, s.executionPath)
	return out
}

// GetNodeState returns the scratch bag for nodeID, creating it on first
// access. The same pointer is returned on every call for a given
// nodeID, a stability guarantee plugins rely on.
func (s *State) GetNodeState(nodeID string, zero func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.nodeStates[nodeID]; ok {
		return v
	}
	v := zero()
	s.nodeStates[nodeID] = v
	return v
}

// LoopStateFor returns the bookkeeping record for a loop edge, creating it
// with the given max on first access.
func (s *State) LoopStateFor(edgeID string, max int) *LoopState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ls, ok := s.loopStates[edgeID]; ok {
		return ls
	}
	ls := &LoopState{MaxIterations: max, Accumulator: make(map[string]any), StartedAt: time.Now()}
	s.loopStates[edgeID] = ls
	return ls
}

// AdvanceLoop is the loop-progress rule of spec §4.6. The node's first
// run reaches it over the regular (non-loop) incoming edge, not this
// one, so the loop edge only ever needs to retrigger max-1 more times
// to bring the total run count to max. The counter for edgeID starts
// at 0 and advances by one per call, reporting advanced == true only
// while the pre-advance counter is still below max-1. This lets
// maxIterations == 1 run exactly once: the first completion finds
// 0 >= 0 true and never retriggers the loop edge at all.  When it
// advances, accumulatorFields are projected from output into the
// loop's running accumulator.
func (s *State) AdvanceLoop(edgeID string, max int, output map[string]any, accumulatorFields []string) (iteration int, advanced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.loopStates[edgeID]
	if !ok {
		ls = &LoopState{MaxIterations: max, Accumulator: make(map[string]any), StartedAt: time.Now()}
		s.loopStates[edgeID] = ls
	}
	if ls.Iteration >= max-1 {
		return ls.Iteration, false
	}
	ls.Iteration++
	for _, field := range accumulatorFields {
		if v, present := output[field]; present {
			ls.Accumulator[field] = v
		}
	}
	return ls.Iteration, true
}

// LoopAccumulator returns a snapshot of edgeID's running accumulator,
// the value a plugin's getLoopContext reads from its node state.
func (s *State) LoopAccumulator(edgeID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.loopStates[edgeID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(ls.Accumulator))
	for k, v := range ls.Accumulator {
		out[k] = v
	}
	return out
}

// HasErrors reports whether any context-key recorded a terminal error.
func (s *State) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs) > 0
}

// Errors returns a copy of the per-context-key error record.
func (s *State) Errors() map[string]*engerrors.EngineError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*engerrors.EngineError, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// Results returns a copy of the per-context-key result record, used by
// the terminal summary (`nodeResults` in §6.4).
func (s *State) Results() map[string]NodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]NodeResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// FindOutputsByClosure implements the loop-stack closure rule of spec
// §4.6: look for nodeID's output in the current context-key first; if
// absent, walk the stack outward (dropping the innermost frame each
// time) until an ancestor's recorded output is found or the root is
// reached.
func (s *State) FindOutputsByClosure(nodeID string, stack Stack) (domain.PortSet, Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(stack); i >= 0; i-- {
		key := Key{NodeID: nodeID, Stack: stack[:i]}
		if out, ok := s.nodeOutputs[key.String()]; ok {
			return out, key, true
		}
	}
	return nil, Key{}, false
}

// Clear resets the state, for test reuse.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeOutputs = make(map[string]domain.PortSet)
	s.results = make(map[string]NodeResult)
	s.executed = make(map[string]struct{})
	s.running = make(map[string]struct{})
	s.executionPath = nil
	s.runIndex = make(map[string]int)
	s.loopStates = make(map[string]*LoopState)
	s.nodeStates = make(map[string]any)
	s.errs = make(map[string]*engerrors.EngineError)
}
