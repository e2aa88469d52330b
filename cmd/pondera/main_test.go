package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondera-ai/pondera/pkg/config"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/logging"
)

func offlineConfig() *config.Config {
	cfg := config.Default()
	cfg.Offline = true
	cfg.Session.InMemory = true
	return cfg
}

func TestBuildAppOffline(t *testing.T) {
	app, err := buildApp(offlineConfig(), logging.GetLogger())
	require.NoError(t, err)
	defer app.close()

	assert.NotNil(t, app.engine)
	assert.NotNil(t, app.sessions)
}

func TestBuildAppUsesRewardConfig(t *testing.T) {
	cfg := offlineConfig()
	// Weights now sum to 1.5; if the scorer were built from defaults
	// instead of cfg.Reward this would be accepted silently.
	cfg.Reward.AxiomWeight = 0.9

	_, err := buildApp(cfg, logging.GetLogger())
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
}
