package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"
)

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), SamplerFor(1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), SamplerFor(2).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), SamplerFor(0).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), SamplerFor(-1).Description())
	assert.Contains(t, SamplerFor(0.25).Description(), "ParentBased")
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsSampled())
}

func TestShouldSampleBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.True(t, ShouldSample(1))
		assert.False(t, ShouldSample(0))
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ENV", "development")
	assert.Equal(t, zapcore.DebugLevel, getLogLevel())
	assert.Equal(t, 1.0, GetSamplingRate())

	t.Setenv("ENV", "production")
	assert.Equal(t, zapcore.InfoLevel, getLogLevel())
	assert.Equal(t, 0.1, GetSamplingRate())

	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, zapcore.WarnLevel, getLogLevel())
}

func TestMockRegistryCounts(t *testing.T) {
	m := NewMockMetricsRegistry()
	m.IncrementValidations("conflict")
	m.IncrementValidations("conflict")
	m.AddDeactivations("Header", 3)
	m.IncrementCacheLookups("stale")
	assert.Equal(t, 2, m.Count("validation:conflict"))
	assert.Equal(t, 3, m.Count("deactivated:Header"))
	assert.Equal(t, 1, m.Count("cache_lookup:stale"))
	assert.Zero(t, m.Count("cache_lookup:hit"))
}
