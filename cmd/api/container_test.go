package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/config"
)

func newMockContainer(t *testing.T) *Container {
	t.Helper()

	c, err := NewContainer(mockConfig(), WithMetricsRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func mockConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.App.Mode = config.AppModeMock
	cfg.Publisher.Enabled = false
	cfg.Repair.Enabled = false
	return cfg
}

func TestNewContainer_MockMode(t *testing.T) {
	c := newMockContainer(t)

	assert.NotNil(t, c.Store)
	assert.NotNil(t, c.Audit)
	assert.NotNil(t, c.EventLog)
	assert.Nil(t, c.MongoDB, "mock mode must not touch MongoDB")
	assert.Nil(t, c.Redis, "mock mode must not touch Redis")
	assert.Nil(t, c.Publisher)
	assert.Empty(t, c.HealthCheckers)
}

func TestContainer_CloseIsIdempotentInMockMode(t *testing.T) {
	c, err := NewContainer(mockConfig(), WithMetricsRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
