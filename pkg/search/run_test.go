package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondera-ai/pondera/pkg/budget"
	"github.com/pondera-ai/pondera/pkg/core"
)

func TestRunEndToEnd(t *testing.T) {
	service := scriptedRun()
	service.Respond("Extract factual claims",
		`[{"subject": "demand", "relation": "grew by", "object": "20% last year", "confidence": 0.8}]`)

	engine, store := newTestEngine(t, service, func(o *engineOptions) {
		o.cfg.MaxIterations = 12
	})

	report, err := engine.Run(context.Background(), "Will grid storage outpace demand growth?")
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "test-run", report.RunID)
	assert.Equal(t, "Will grid storage outpace demand growth?", report.Question)
	assert.GreaterOrEqual(t, report.NodesExpanded, 1)
	assert.Greater(t, report.NodesCreated, 1, "decomposition created children")
	assert.Greater(t, report.Budget.Consumed, int64(0))

	require.NotEmpty(t, report.BestPath)
	assert.Equal(t, 0, report.BestPath[0].NodeID, "best path starts at the root")
	assert.NotEmpty(t, report.BestPath[0].Answer)

	// Every expansion backpropagates exactly once through the root.
	root, err := engine.Tree().Get(0)
	require.NoError(t, err)
	assert.Equal(t, int64(report.NodesExpanded), root.Visits)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Greater(t, count, 0)
	assert.NotEmpty(t, report.FactTierCounts)
}

func TestRunEmptyQuestion(t *testing.T) {
	engine, _ := newTestEngine(t, scriptedRun(), nil)
	_, err := engine.Run(context.Background(), "")
	assert.Error(t, err)
}

func TestRunCancelledContext(t *testing.T) {
	engine, _ := newTestEngine(t, scriptedRun(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := engine.Run(ctx, "X")
	require.NoError(t, err, "cancellation terminates gracefully")
	require.NotNil(t, report)
	assert.Zero(t, report.NodesExpanded)
	require.NotEmpty(t, report.BestPath, "the root is always reported")
}

func TestRunBudgetExhaustion(t *testing.T) {
	service := scriptedRun()
	service.FixedUsage = &core.TokenUsage{PromptTokens: 150, CompletionTokens: 150, TotalTokens: 300}

	engine, _ := newTestEngine(t, service, func(o *engineOptions) {
		o.budgetCfg = budget.Config{Total: 500, BaseAllocation: 1_000, MinAllocation: 250, MaxAllocation: 4_000}
	})

	report, err := engine.Run(context.Background(), "X")
	require.NoError(t, err, "budget exhaustion is a normal termination path")
	require.NotNil(t, report)

	assert.Equal(t, 1, report.NodesExpanded, "the run stops after the budget is spent")
	assert.GreaterOrEqual(t, report.Budget.Consumed, report.Budget.Total)
	assert.Zero(t, report.Budget.Remaining)
	require.NotEmpty(t, report.BestPath)
}

func TestRunIterationCap(t *testing.T) {
	engine, _ := newTestEngine(t, scriptedRun(), func(o *engineOptions) {
		o.cfg.MaxIterations = 3
	})

	report, err := engine.Run(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Iterations)
}

func TestResumeRequiresTree(t *testing.T) {
	engine, _ := newTestEngine(t, scriptedRun(), nil)
	_, err := engine.Resume(context.Background())
	assert.Error(t, err)
}

func TestResumeContinuesRun(t *testing.T) {
	engine, _ := newTestEngine(t, scriptedRun(), func(o *engineOptions) {
		o.cfg.MaxIterations = 2
	})
	first, err := engine.Run(context.Background(), "X")
	require.NoError(t, err)
	require.Equal(t, 2, first.Iterations)

	snapshot := engine.Tree().Snapshot()

	resumed, _ := newTestEngine(t, scriptedRun(), func(o *engineOptions) {
		o.cfg.MaxIterations = 6
	})
	require.NoError(t, resumed.Tree().Restore(snapshot))

	report, err := resumed.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resumed.Tree().Len(), report.NodesCreated)
	assert.GreaterOrEqual(t, resumed.Tree().Len(), len(snapshot),
		"resume continues growing the restored tree")
}
