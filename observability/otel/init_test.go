package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=cdp")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "cdp"}, headers)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "cdpd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{ServiceName: "cdpd", SampleRatio: 4}.withDefaults()
	require.Equal(t, defaultEndpoint, cfg.Endpoint)
	require.Equal(t, 1.0, cfg.SampleRatio)
	require.Equal(t, 15*time.Second, cfg.ExportInterval)

	cfg = Config{Endpoint: " collector:4318 ", SampleRatio: 0.25}.withDefaults()
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.Equal(t, 0.25, cfg.SampleRatio)
}

func TestMeterAndTracerBeforeInit(t *testing.T) {
	require.NotNil(t, Meter("test"))
	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()
}
