package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/apiserver/config"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	assert.Nil(t, p.Tracer)
	assert.Nil(t, p.Logger)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestHeaders(t *testing.T) {
	assert.Nil(t, headers(config.TelemetryConfig{}))
	assert.Equal(t,
		map[string]string{"Authorization": "Basic abc"},
		headers(config.TelemetryConfig{OtelAuthHeader: "Basic abc"}),
	)
}

func TestNewResource(t *testing.T) {
	res, err := newResource()
	require.NoError(t, err)

	var found bool
	for _, kv := range res.Attributes() {
		if string(kv.Key) == "service.name" {
			found = true
			assert.Equal(t, config.ServiceName, kv.Value.AsString())
		}
	}
	assert.True(t, found)
}
