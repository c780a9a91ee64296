package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

func TestInitTracer_WithoutEndpointInstallsPropagator(t *testing.T) {
	shutdown, err := telemetry.InitTracer(context.Background(), "notifier", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	defer shutdown()

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
	assert.NotNil(t, telemetry.Tracer("notifier"))
}
