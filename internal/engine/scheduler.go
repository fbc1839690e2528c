package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/gatherer"
	"github.com/smilemakc/mbflow/internal/graph"
	"github.com/smilemakc/mbflow/internal/plugin"
	"github.com/smilemakc/mbflow/internal/resolver"
	"github.com/smilemakc/mbflow/internal/sink"
	"github.com/smilemakc/mbflow/internal/state"
)

// scheduler is one Execute call's live run: the mutable bookkeeping
// around a shared Execution State that the Engine's collaborators
// (registry, credentials, resolver) are dispatched through.
type scheduler struct {
	eng       *Engine
	g         *graph.Graph
	opts      Options
	st        *state.State
	vars      map[string]any
	trigger   any
	startedAt time.Time

	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	enqueued map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	dispatches int64
}

func newScheduler(eng *Engine, g *graph.Graph, opts Options, vars map[string]any, trigger any) *scheduler {
	return &scheduler{
		eng:       eng,
		g:         g,
		opts:      opts,
		st:        state.New(),
		vars:      vars,
		trigger:   trigger,
		startedAt: time.Now(),
		sem:       make(chan struct{}, opts.MaxConcurrency),
		enqueued:  make(map[string]struct{}),
	}
}

func (s *scheduler) run(ctx context.Context) (*Result, error) {
	if s.opts.MaxExecutionTime > 0 {
		ctx, s.cancel = context.WithTimeout(ctx, s.opts.MaxExecutionTime)
	} else {
		ctx, s.cancel = context.WithCancel(ctx)
	}
	defer s.cancel()
	s.ctx = ctx

	if err := s.opts.Sink.CreateExecution(ctx, sink.CreateExecutionParams{
		RoutineID:   s.opts.WorkflowID,
		UserID:      s.opts.UserID,
		WorkflowID:  s.opts.WorkflowID,
		RunID:       s.opts.RunID,
		TriggerType: s.opts.TriggerType,
		TriggerData: s.trigger,
	}); err != nil {
		s.opts.Logger.Warn().Err(err).Msg("sink: createExecution failed")
	}

	for _, n := range s.g.EntryNodes() {
		s.trySpawn(state.Key{NodeID: n.ID})
	}
	s.wg.Wait()

	return s.finalize(ctx), nil
}

func (s *scheduler) finalize(ctx context.Context) *Result {
	status := StatusCompleted
	switch {
	case s.ctx.Err() == context.DeadlineExceeded:
		status = StatusFailed
	case s.ctx.Err() == context.Canceled && s.st.HasErrors():
		status = StatusFailed
	case s.ctx.Err() == context.Canceled:
		status = StatusCancelled
	case s.st.HasErrors():
		status = StatusFailed
	}

	path := s.st.ExecutionPath()
	pathIDs := make([]string, len(path))
	for i, p := range path {
		pathIDs[i] = p.NodeID
	}

	result := &Result{
		Status:        status,
		ExecutionPath: path,
		NodeResults:   s.st.Results(),
		Errors:        s.st.Errors(),
	}

	var statusErr error
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			statusErr = e
			break
		}
	}
	now := time.Now()
	if err := s.opts.Sink.UpdateStatus(ctx, sink.UpdateStatusParams{
		WorkflowID:    s.opts.WorkflowID,
		Status:        string(status),
		ExecutionPath: pathIDs,
		Err:           statusErr,
		CompletedAt:   &now,
	}); err != nil {
		s.opts.Logger.Warn().Err(err).Msg("sink: updateStatus failed")
	}
	return result
}

// trySpawn enqueues nodeID's task at key unless it is already
// queued/running/executed/errored, or the node is disabled, per the
// per-task state machine of spec §4.6.
func (s *scheduler) trySpawn(key state.Key) {
	node, ok := s.g.Node(key.NodeID)
	if !ok || !node.Enabled() {
		return
	}

	ks := key.String()
	s.mu.Lock()
	if _, exists := s.enqueued[ks]; exists {
		s.mu.Unlock()
		return
	}
	if s.st.IsExecuted(key) || s.st.HasError(key) {
		s.mu.Unlock()
		return
	}
	s.enqueued[ks] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execTask(key)
}

func (s *scheduler) execTask(key state.Key) {
	defer s.wg.Done()

	select {
	case <-s.ctx.Done():
		return
	case s.sem <- struct{}{}:
	}
	defer func() { <-s.sem }()

	if s.ctx.Err() != nil {
		return
	}

	if s.opts.MaxExecutions > 0 {
		if atomic.AddInt64(&s.dispatches, 1) > int64(s.opts.MaxExecutions) {
			s.fail(key, engerrors.ForNode(engerrors.KindBudgetExceeded,
				fmt.Sprintf("exceeded maxExecutions=%d", s.opts.MaxExecutions), key.NodeID, key.String(), nil))
			return
		}
	}

	s.st.MarkRunning(key)
	startedAt := time.Now()
	if s.opts.OnNodeStart != nil {
		s.opts.OnNodeStart(key.NodeID)
	}

	outputs, branch, hasBranch, err := s.dispatch(key)
	if err != nil {
		if s.ctx.Err() == context.DeadlineExceeded {
			err = engerrors.ForNode(engerrors.KindTimeout, "execution timed out", key.NodeID, key.String(), err)
		}
		s.fail(key, err)
		_ = s.opts.Sink.StoreNodeResult(s.ctx, sink.StoreNodeResultParams{
			WorkflowID: s.opts.WorkflowID, NodeID: key.NodeID, Status: "failed",
			Err: err, StartedAt: startedAt, CompletedAt: time.Now(),
		})
		return
	}

	if !s.st.AddNodeResult(key, outputs, branch, hasBranch) {
		return
	}

	if err := s.opts.Sink.StoreNodeResult(s.ctx, sink.StoreNodeResultParams{
		WorkflowID: s.opts.WorkflowID, NodeID: key.NodeID, Status: "succeeded",
		Output: outputs, StartedAt: startedAt, CompletedAt: time.Now(),
	}); err != nil {
		s.opts.Logger.Warn().Err(err).Str("node", key.NodeID).Msg("sink: storeNodeResult failed")
	}

	if s.opts.OnNodeComplete != nil {
		if res, ok := s.st.Results()[key.String()]; ok {
			s.opts.OnNodeComplete(key.NodeID, res)
		}
	}

	s.expandSuccessors(key, outputs, branch, hasBranch)
}

func (s *scheduler) fail(key state.Key, err *engerrors.EngineError) {
	s.st.RecordError(key, err)
	if s.opts.OnNodeError != nil {
		s.opts.OnNodeError(key.NodeID, err)
	}
	s.cancel()
}

// dispatch runs the full plugin dispatch contract of spec §4.6 steps
// 1-6 for one task, short of recording the result into State.
func (s *scheduler) dispatch(key state.Key) (domain.PortSet, string, bool, *engerrors.EngineError) {
	node, _ := s.g.Node(key.NodeID)

	p, ok := s.eng.registry.Get(node.PluginID)
	if !ok {
		return nil, "", false, engerrors.ForNode(engerrors.KindPluginNotFound,
			"no plugin registered for id "+node.PluginID, key.NodeID, key.String(), nil)
	}

	resolved, _ := s.eng.resolve.Resolve(node.Parameters, resolver.Context{
		Vars:    s.vars,
		Nodes:   closureLookup{st: s.st, stack: key.Stack},
		Trigger: s.trigger,
		Execution: resolver.ExecutionMeta{
			ID:        s.opts.RunID,
			RoutineID: s.opts.WorkflowID,
			StartedAt: s.startedAt,
		},
	})
	resolvedParams, _ := resolved.(map[string]any)
	if resolvedParams == nil {
		resolvedParams = map[string]any{}
	}

	gathered, gerr := gatherer.Gather(s.g, s.st, key.NodeID, key.Stack)
	if gerr != nil {
		return nil, "", false, gerr
	}

	credentials := map[string]plugin.CredentialRecord{}
	for alias, credID := range node.CredentialMappings {
		if s.eng.credentials == nil {
			return nil, "", false, engerrors.ForNode(engerrors.KindCredentialLoadFailed,
				"node requires credential "+credID+" but no credential loader is configured", key.NodeID, key.String(), nil)
		}
		rec, err := s.eng.credentials.Load(s.ctx, credID)
		if err != nil {
			return nil, "", false, engerrors.ForNode(engerrors.KindCredentialLoadFailed,
				"failed to load credential "+credID, key.NodeID, key.String(), err)
		}
		credentials[alias] = rec
	}

	execCtx := plugin.ExecutionContext{
		UserID:      s.opts.UserID,
		RoutineID:   s.opts.WorkflowID,
		ExecutionID: s.opts.RunID,
		NodeID:      key.NodeID,
		Credentials: credentials,
		TriggerData: s.trigger,
	}
	nodeState := s.st.GetNodeState(key.NodeID, func() any { return plugin.NewNodeState(s.st.LoopAccumulator) })

	var out plugin.Output
	err := withRetry(s.ctx, node.Retry, func() error {
		var execErr error
		out, execErr = p.Execute(s.ctx, gathered.Inputs, resolvedParams, execCtx, nodeState)
		return execErr
	})
	if err != nil {
		return nil, "", false, engerrors.ForNode(engerrors.KindPluginExecutionFailed,
			"plugin execution failed", key.NodeID, key.String(), err)
	}

	schemas := p.DefineSchemas()
	if verr := validateOutputKeys(out, schemas.Outputs); verr != nil {
		return nil, "", false, engerrors.ForNode(engerrors.KindOutputValidationFailed,
			verr.Error(), key.NodeID, key.String(), verr)
	}

	ports, branch, hasBranch := normalizeOutput(out)
	return ports, branch, hasBranch, nil
}

// validateOutputKeys rejects any output port the plugin did not declare
// in DefineSchemas, per spec §6.1 ("unknown output keys are rejected").
// The special keys branch, signal and data are always accepted, and a
// plugin that declares no output ports is not checked at all.
func validateOutputKeys(out plugin.Output, schemas map[string]plugin.PortSchema) error {
	if len(schemas) == 0 {
		return nil
	}
	for k := range out {
		if k == "branch" || k == "signal" || k == "data" {
			continue
		}
		if _, declared := schemas[k]; !declared {
			return fmt.Errorf("output port %q is not declared in the plugin's output schema", k)
		}
	}
	return nil
}

// normalizeOutput interprets the special keys the Scheduler recognizes
// (spec §4.6 "Special output keys"): a bare "branch" key, or the
// standardized {data, signal} wrapping.
func normalizeOutput(out plugin.Output) (domain.PortSet, string, bool) {
	branch := ""
	hasBranch := false
	var raw map[string]any

	if data, ok := out["data"].(map[string]any); ok {
		raw = data
		if sig, ok := out["signal"].(string); ok {
			branch, hasBranch = sig, true
		}
	} else {
		raw = make(map[string]any, len(out))
		for k, v := range out {
			switch k {
			case "branch":
				if s, ok := v.(string); ok {
					branch, hasBranch = s, true
				}
			case "signal":
				if s, ok := v.(string); ok && !hasBranch {
					branch, hasBranch = s, true
				}
			default:
				raw[k] = v
			}
		}
	}

	ports := make(domain.PortSet, len(raw))
	for k, v := range raw {
		ports[k] = domain.SingleItem(v)
	}
	return ports, branch, hasBranch
}

// expandSuccessors implements spec §4.6's successor computation: branch
// filtering for regular edges, UNROUTED_BRANCH detection, and the
// loop-progress rule for loop edges.
func (s *scheduler) expandSuccessors(key state.Key, outputs domain.PortSet, branch string, hasBranch bool) {
	edges := s.g.EdgesBySource(key.NodeID)

	var regular, loopEdges []*domain.Connection
	for _, c := range edges {
		if c.Condition.IsLoop() {
			loopEdges = append(loopEdges, c)
		} else {
			regular = append(regular, c)
		}
	}

	if hasBranch {
		var branchValues []string
		matched := false
		for _, c := range regular {
			if c.Condition != nil && c.Condition.Type == domain.ConditionBranch {
				branchValues = append(branchValues, c.Condition.Value)
				if c.Condition.Value == branch {
					matched = true
				}
			}
		}
		if len(branchValues) > 0 && !matched {
			s.fail(key, engerrors.ForNode(engerrors.KindUnroutedBranch,
				fmt.Sprintf("node emitted branch %q; no outgoing edge matches (available: %v)", branch, branchValues),
				key.NodeID, key.String(), nil))
			return
		}
	}

	for _, c := range regular {
		follow := c.Condition == nil || c.Condition.Type == domain.ConditionDefault
		if hasBranch && c.Condition != nil && c.Condition.Type == domain.ConditionBranch && c.Condition.Value == branch {
			follow = true
		}
		if !follow {
			continue
		}
		targetKey := state.Key{NodeID: c.TargetNodeID, Stack: key.Stack}
		if s.ready(targetKey) {
			s.trySpawn(targetKey)
		}
	}

	for _, c := range loopEdges {
		s.advanceLoop(key, c, outputs)
	}
}

// ready reports whether every non-loop predecessor of key.NodeID has an
// executed result visible from key.Stack via the closure rule.
func (s *scheduler) ready(key state.Key) bool {
	for _, c := range s.g.NonLoopIncoming(key.NodeID) {
		if _, _, ok := s.st.FindOutputsByClosure(c.SourceNodeID, key.Stack); !ok {
			return false
		}
	}
	return true
}

func (s *scheduler) advanceLoop(completer state.Key, edge *domain.Connection, outputs domain.PortSet) {
	loopCfg := edge.Condition.Loop
	iteration, advanced := s.st.AdvanceLoop(edge.ID, loopCfg.MaxIterations, outputs.FirstDataByPort(), loopCfg.AccumulatorFields)
	if !advanced {
		return
	}
	newStack := completer.Stack.Bump(edge.ID, iteration)
	targetKey := state.Key{NodeID: edge.TargetNodeID, Stack: newStack}
	if s.ready(targetKey) {
		s.trySpawn(targetKey)
	}
}
