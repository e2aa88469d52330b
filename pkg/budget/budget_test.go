package budget

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAllocateAndCharge(t *testing.T) {
	ledger, err := NewLedger(10_000)
	require.NoError(t, err)

	require.NoError(t, ledger.Allocate(1, 1_000))

	consumed, over, err := ledger.Charge(1, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(400), consumed)
	assert.False(t, over)

	consumed, over, err = ledger.Charge(1, 800)
	require.NoError(t, err)
	assert.Equal(t, int64(1_200), consumed)
	assert.True(t, over, "charge past the allocation reports overrun")

	assert.Equal(t, int64(1_200), ledger.Consumed())
	assert.Equal(t, int64(8_800), ledger.Remaining())
}

func TestLedgerChargeBeforeAllocate(t *testing.T) {
	ledger, err := NewLedger(10_000)
	require.NoError(t, err)

	_, _, err = ledger.Charge(7, 100)
	assert.Error(t, err)
}

func TestLedgerReallocateRaisesCeiling(t *testing.T) {
	ledger, err := NewLedger(10_000)
	require.NoError(t, err)

	require.NoError(t, ledger.Allocate(1, 500))
	_, over, err := ledger.Charge(1, 500)
	require.NoError(t, err)
	assert.False(t, over)

	require.NoError(t, ledger.Allocate(1, 1_000))
	_, over, err = ledger.Charge(1, 400)
	require.NoError(t, err)
	assert.False(t, over, "raised ceiling covers further consumption")

	// A lower re-allocation never shrinks the ceiling.
	require.NoError(t, ledger.Allocate(1, 100))
	allocated, _, ok := ledger.NodeUsage(1)
	require.True(t, ok)
	assert.Equal(t, int64(1_000), allocated)
}

func TestLedgerConcurrentCharges(t *testing.T) {
	ledger, err := NewLedger(1_000_000)
	require.NoError(t, err)
	require.NoError(t, ledger.Allocate(1, 1_000_000))

	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, _, err := ledger.Charge(1, 10)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	want := int64(workers * perWorker * 10)
	assert.Equal(t, want, ledger.Consumed())
	_, consumed, ok := ledger.NodeUsage(1)
	require.True(t, ok)
	assert.Equal(t, want, consumed)
}

func TestLedgerSnapshotRestore(t *testing.T) {
	ledger, err := NewLedger(10_000)
	require.NoError(t, err)
	require.NoError(t, ledger.Allocate(1, 1_000))
	require.NoError(t, ledger.Allocate(2, 500))
	_, _, err = ledger.Charge(1, 300)
	require.NoError(t, err)
	_, _, err = ledger.Charge(2, 200)
	require.NoError(t, err)

	snap := ledger.Snapshot()

	restored, err := NewLedger(10_000)
	require.NoError(t, err)
	restored.Restore(snap)

	assert.Equal(t, int64(500), restored.Consumed())
	allocated, consumed, ok := restored.NodeUsage(1)
	require.True(t, ok)
	assert.Equal(t, int64(1_000), allocated)
	assert.Equal(t, int64(300), consumed)
}

func TestGovernorAllocateClamps(t *testing.T) {
	cfg := Config{Total: 100_000, BaseAllocation: 1_000, MinAllocation: 500, MaxAllocation: 2_500}
	gov, err := NewGovernor(cfg, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		priority float64
		want     int64
	}{
		{"mid priority scales base", 0.5, 1_500},
		{"zero priority keeps base", 0, 1_000},
		{"negative priority treated as zero", -0.3, 1_000},
		{"high priority clamped to max", 4.0, 2_500},
	}

	ctx := context.Background()
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := gov.Allocate(ctx, i, tt.priority)
			require.NoError(t, err)
			assert.Equal(t, tt.want, units)
		})
	}
}

func TestGovernorConsumePruneSignal(t *testing.T) {
	cfg := Config{Total: 100_000, BaseAllocation: 1_000, MinAllocation: 250, MaxAllocation: 4_000}
	gov, err := NewGovernor(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	units, err := gov.Allocate(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), units)

	signal, err := gov.Consume(ctx, 1, 800)
	require.NoError(t, err)
	assert.False(t, bool(signal))

	signal, err = gov.Consume(ctx, 1, 400)
	require.NoError(t, err)
	assert.True(t, bool(signal), "consuming 1200 of 1000 requests a prune")

	report := gov.Report()
	assert.Equal(t, int64(1_200), report.Consumed)
	assert.Equal(t, int64(98_800), report.Remaining)
	require.Len(t, report.Nodes, 1)
	assert.Equal(t, int64(1_200), report.Nodes[0].Consumed)
}

func TestGovernorGlobalExhaustion(t *testing.T) {
	cfg := Config{Total: 1_000, BaseAllocation: 1_000, MinAllocation: 250, MaxAllocation: 4_000}
	gov, err := NewGovernor(cfg, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = gov.Allocate(ctx, 1, 0)
	require.NoError(t, err)

	assert.False(t, gov.GlobalExhausted())
	_, err = gov.Consume(ctx, 1, 1_000)
	require.NoError(t, err)
	assert.True(t, gov.GlobalExhausted())
	assert.Equal(t, int64(0), gov.RemainingGlobal())
}
