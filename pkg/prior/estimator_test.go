package prior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pondera-ai/pondera/internal/testutil"
	"github.com/pondera-ai/pondera/pkg/errors"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"plain", "0.8", 0.8, false},
		{"whitespace", "  0.35\n", 0.35, false},
		{"trailing period", "0.9.", 0.9, false},
		{"integer bound", "1", 1, false},
		{"out of range", "1.5", 0, true},
		{"negative", "-0.2", 0, true},
		{"prose", "I'd say 0.8", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseNumber(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}
}

func TestEstimate(t *testing.T) {
	service := testutil.NewScriptedService()
	service.DefaultContent = "0.8"

	est := NewEstimator(service, nil, 0)
	prior := est.Estimate(context.Background(), 1, "root question", "sub-question A")
	assert.InDelta(t, 0.8, prior, 1e-9)
	assert.Equal(t, 1, service.CallCount())
}

func TestEstimateMemoizes(t *testing.T) {
	service := testutil.NewScriptedService()
	service.DefaultContent = "0.7"

	est := NewEstimator(service, nil, 0)
	first := est.Estimate(context.Background(), 3, "", "q")
	second := est.Estimate(context.Background(), 3, "", "q")

	assert.InDelta(t, first, second, 1e-9)
	assert.Equal(t, 1, service.CallCount(), "second estimate is served from cache")
}

func TestEstimateNeutralOnFailure(t *testing.T) {
	t.Run("service error", func(t *testing.T) {
		service := &testutil.FailingService{Err: errors.New(errors.ServiceUnavailable, "down")}
		est := NewEstimator(service, nil, 0)
		assert.InDelta(t, 0.5, est.Estimate(context.Background(), 1, "", "q"), 1e-9)
	})

	t.Run("prose response", func(t *testing.T) {
		service := testutil.NewScriptedService()
		service.DefaultContent = "probably around 0.8 or so"
		est := NewEstimator(service, nil, 0)
		assert.InDelta(t, 0.5, est.Estimate(context.Background(), 1, "", "q"), 1e-9)
	})

	t.Run("nil service", func(t *testing.T) {
		est := NewEstimator(nil, nil, 0)
		assert.InDelta(t, 0.5, est.Estimate(context.Background(), 1, "", "q"), 1e-9)
	})

	t.Run("failure is not cached", func(t *testing.T) {
		service := testutil.NewScriptedService()
		service.Queue("garbage")
		service.Queue("0.9")

		est := NewEstimator(service, nil, 0)
		assert.InDelta(t, 0.5, est.Estimate(context.Background(), 1, "", "q"), 1e-9)
		assert.InDelta(t, 0.9, est.Estimate(context.Background(), 1, "", "q"), 1e-9)
	})
}

func TestPin(t *testing.T) {
	service := testutil.NewScriptedService()
	service.DefaultContent = "0.1"

	est := NewEstimator(service, nil, 0)
	est.Pin(5, 1.0)

	assert.InDelta(t, 1.0, est.Estimate(context.Background(), 5, "", "q"), 1e-9)
	assert.Equal(t, 0, service.CallCount(), "pinned priors never call the service")
}
