package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

func TestAddNodeResult_MonotonicWriteOnce(t *testing.T) {
	s := New()
	key := Key{NodeID: "n1"}

	recorded := s.AddNodeResult(key, domain.PortSet{"out": domain.SingleItem(1)}, "", false)
	assert.True(t, recorded)

	recordedAgain := s.AddNodeResult(key, domain.PortSet{"out": domain.SingleItem(2)}, "", false)
	assert.False(t, recordedAgain, "a second write to the same context-key must be a no-op")

	got := s.Results()[key.String()]
	assert.Equal(t, 1, got.Outputs.FirstData("out"))
}

func TestExecutionPath_RecordsCompletionOrderAndRunIndex(t *testing.T) {
	s := New()
	s.AddNodeResult(Key{NodeID: "n1"}, domain.PortSet{}, "", false)
	s.AddNodeResult(Key{NodeID: "n2"}, domain.PortSet{}, "", false)
	s.AddNodeResult(Key{NodeID: "n1", Stack: Stack{{EdgeID: "loop1", Iteration: 1}}}, domain.PortSet{}, "", false)

	path := s.ExecutionPath()
	require.Len(t, path, 3)
	assert.Equal(t, []PathEntry{
		{NodeID: "n1", RunIndex: 1},
		{NodeID: "n2", RunIndex: 1},
		{NodeID: "n1", RunIndex: 2},
	}, path)
	assert.Equal(t, 2, s.GetRunIndex("n1"))
}

func TestGetNodeState_StablePointerAcrossCalls(t *testing.T) {
	s := New()
	calls := 0
	zero := func() any {
		calls++
		return &struct{ n int }{}
	}

	first := s.GetNodeState("n1", zero)
	second := s.GetNodeState("n1", zero)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls, "zero() must only run on first access")
}

func TestAdvanceLoop_MaxIterationsOneRunsExactlyOnce(t *testing.T) {
	s := New()

	// The node's first run arrives over the regular edge, not this loop
	// edge, so with max == 1 the loop edge must never advance at all.
	iteration, advanced := s.AdvanceLoop("loop1", 1, map[string]any{"total": 10}, []string{"total"})
	assert.False(t, advanced)
	assert.Equal(t, 0, iteration)
}

func TestAdvanceLoop_MaxIterationsThreeAdvancesTwice(t *testing.T) {
	s := New()

	// Run 1 happens via the regular edge. The loop edge must supply
	// exactly max-1 = 2 more advances (runs 2 and 3), then stop.
	_, advanced1 := s.AdvanceLoop("loop1", 3, map[string]any{"total": 10}, []string{"total"})
	assert.True(t, advanced1)
	assert.Equal(t, map[string]any{"total": 10}, s.LoopAccumulator("loop1"))

	_, advanced2 := s.AdvanceLoop("loop1", 3, map[string]any{"total": 20}, []string{"total"})
	assert.True(t, advanced2)
	assert.Equal(t, map[string]any{"total": 20}, s.LoopAccumulator("loop1"))

	_, advanced3 := s.AdvanceLoop("loop1", 3, map[string]any{"total": 30}, []string{"total"})
	assert.False(t, advanced3, "the third completion must not trigger a fourth run")
	assert.Equal(t, map[string]any{"total": 20}, s.LoopAccumulator("loop1"), "a rejected advance must not touch the accumulator")
}

func TestLoopAccumulator_ReturnsSnapshotNotSharedMap(t *testing.T) {
	s := New()
	s.AdvanceLoop("loop1", 5, map[string]any{"total": 1}, []string{"total"})

	snap := s.LoopAccumulator("loop1")
	snap["total"] = 999

	assert.Equal(t, map[string]any{"total": 1}, s.LoopAccumulator("loop1"))
}

func TestLoopAccumulator_UnknownEdgeReturnsNil(t *testing.T) {
	s := New()
	assert.Nil(t, s.LoopAccumulator("never-advanced"))
}

func TestFindOutputsByClosure_ExactContextFirst(t *testing.T) {
	s := New()
	outer := Key{NodeID: "n1"}
	inner := Key{NodeID: "n1", Stack: Stack{{EdgeID: "loop1", Iteration: 1}}}

	s.AddNodeResult(outer, domain.PortSet{"v": domain.SingleItem("outer")}, "", false)
	s.AddNodeResult(inner, domain.PortSet{"v": domain.SingleItem("inner")}, "", false)

	out, key, ok := s.FindOutputsByClosure("n1", Stack{{EdgeID: "loop1", Iteration: 1}})
	require.True(t, ok)
	assert.Equal(t, "inner", out.FirstData("v"))
	assert.Equal(t, inner, key)
}

func TestFindOutputsByClosure_WalksStackOutwardToAncestorScope(t *testing.T) {
	s := New()
	outer := Key{NodeID: "n1"}
	s.AddNodeResult(outer, domain.PortSet{"v": domain.SingleItem("outer")}, "", false)

	// n1 never ran under this inner loop stack, so closure lookup must
	// fall back to the root scope where it did run.
	out, key, ok := s.FindOutputsByClosure("n1", Stack{{EdgeID: "loop1", Iteration: 2}})
	require.True(t, ok)
	assert.Equal(t, "outer", out.FirstData("v"))
	assert.Equal(t, outer, key)
}

func TestFindOutputsByClosure_NotFoundAnywhere(t *testing.T) {
	s := New()
	_, _, ok := s.FindOutputsByClosure("never-ran", Stack{{EdgeID: "loop1", Iteration: 1}})
	assert.False(t, ok)
}

func TestRecordError_ClearsRunningAndMarksHasError(t *testing.T) {
	s := New()
	key := Key{NodeID: "n1"}
	s.MarkRunning(key)
	require.True(t, s.IsRunning(key))

	s.RecordError(key, engerrors.New(engerrors.KindPluginExecutionFailed, "boom"))

	assert.False(t, s.IsRunning(key))
	assert.True(t, s.HasError(key))
	assert.True(t, s.HasErrors())
}

func TestKeyString_RendersStackAsPipeSeparatedFrames(t *testing.T) {
	k := Key{NodeID: "n1", Stack: Stack{{EdgeID: "loop1", Iteration: 2}, {EdgeID: "loop2", Iteration: 0}}}
	assert.Equal(t, "n1|loop1:2|loop2:0", k.String())
	assert.Equal(t, "n1", Key{NodeID: "n1"}.String())
}

func TestStackBump_AdvancesInnermostMatchingFrameInPlace(t *testing.T) {
	s := Stack{{EdgeID: "loop1", Iteration: 1}, {EdgeID: "loop2", Iteration: 3}}
	bumped := s.Bump("loop1", 2)

	require.Len(t, bumped, 2)
	assert.Equal(t, 2, bumped[0].Iteration)
	assert.Equal(t, 3, bumped[1].Iteration)
	assert.Equal(t, 1, s[0].Iteration, "Bump must not mutate the receiver")
}

func TestStackBump_PushesNewFrameWhenEdgeAbsent(t *testing.T) {
	s := Stack{{EdgeID: "loop1", Iteration: 1}}
	bumped := s.Bump("loop2", 1)
	require.Len(t, bumped, 2)
	assert.Equal(t, LoopFrame{EdgeID: "loop2", Iteration: 1}, bumped[1])
}

func TestStackInnermost_PrefersNearestFrameOnNestedLoops(t *testing.T) {
	s := Stack{{EdgeID: "loop1", Iteration: 1}, {EdgeID: "loop1", Iteration: 4}}
	frame, ok := s.Innermost("loop1")
	require.True(t, ok)
	assert.Equal(t, 4, frame.Iteration)
}
