package tracing

import (
	"context"
	"testing"

	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConfig(t *testing.T) {
	cfg := FromConfig("", configs.TracingConfig{Enabled: true, Endpoint: "http://collector:4318/v1/traces", Environment: "test"})

	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http://collector:4318/v1/traces", cfg.Endpoint)
	assert.Equal(t, "test", cfg.Environment)
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	assert.NotNil(t, GetTracer("test"))
}
