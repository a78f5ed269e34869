package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled)
	require.Equal(t, ExporterFile, cfg.Exporter)
	require.Empty(t, cfg.FilePath)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, DefaultServiceName, cfg.ServiceName)
	require.NoError(t, cfg.Validate(), "disabled file exporter needs no path")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "none", cfg: Config{Enabled: true, Exporter: ExporterNone}},
		{name: "stdout", cfg: Config{Enabled: true, Exporter: ExporterStdout, SampleRate: 0.5}},
		{name: "file without path", cfg: Config{Enabled: true, Exporter: ExporterFile}, wantErr: "file_path required"},
		{name: "unknown exporter", cfg: Config{Exporter: "jaeger"}, wantErr: "unsupported exporter"},
		{name: "sample rate too high", cfg: Config{SampleRate: 1.5}, wantErr: "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	ctx, span := provider.Tracer().Start(context.Background(), "noop")
	require.NotNil(t, ctx)
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	provider, err := NewProvider(Config{
		Enabled:     true,
		Exporter:    ExporterFile,
		FilePath:    path,
		SampleRate:  1.0,
		ServiceName: "nsstore-test",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "action.dispatch.test")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"action.dispatch.test"`)
}

func TestNewProvider_NoneExporterStillRecords(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: ExporterNone})
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := provider.Tracer().Start(context.Background(), "correlate")
	defer span.End()
	require.NotEmpty(t, TraceID(ctx))
}

func TestNewProvider_RejectsInvalidConfig(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: ExporterFile})
	require.Error(t, err)

	_, err = NewProvider(Config{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
}

func TestTraceID_NoSpan(t *testing.T) {
	require.Empty(t, TraceID(context.Background()))
}
