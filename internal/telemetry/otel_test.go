package telemetry

import (
	"context"
	"testing"

	"pcstyle-auth/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false, Endpoint: "http://collector:4318"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
