package otel_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	adapter "github.com/neomorfeo/ctinamer/internal/adapter/otel"
)

func TestSetup_StdoutExporter(t *testing.T) {
	providers, err := adapter.Setup(context.Background(), adapter.Config{
		ServiceName:    "test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
		Exporter:       "stdout",
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestSetup_StdoutExporterWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	providers, err := adapter.Setup(context.Background(), adapter.Config{
		ServiceName: "test",
		Exporter:    adapter.ExporterStdout,
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "NamingService.Allocate")
	span.End()

	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), "NamingService.Allocate") {
		t.Errorf("span not written to configured writer; got %q", buf.String())
	}
}

func TestSetup_NoneExporter(t *testing.T) {
	providers, err := adapter.Setup(context.Background(), adapter.Config{
		ServiceName: "test",
		Exporter:    "none",
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestSetup_InvalidExporter(t *testing.T) {
	_, err := adapter.Setup(context.Background(), adapter.Config{
		ServiceName:    "test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
		Exporter:       "invalid",
	})
	if err == nil {
		t.Fatal("expected error for invalid exporter")
	}
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want adapter.Config
	}{
		{
			name: "defaults keep telemetry off",
			env:  map[string]string{},
			want: adapter.Config{ServiceName: "ctinamer", ServiceVersion: "0.1.0", Environment: "development", Exporter: adapter.ExporterNone, Insecure: true},
		},
		{
			name: "production otlp",
			env: map[string]string{
				"OTEL_SERVICE_NAME":    "ctinamer-api",
				"OTEL_SERVICE_VERSION": "1.2.0",
				"OTEL_ENVIRONMENT":     "production",
				"OTEL_EXPORTER":        "otlp",
			},
			want: adapter.Config{ServiceName: "ctinamer-api", ServiceVersion: "1.2.0", Environment: "production", Exporter: adapter.ExporterOTLP},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION", "OTEL_ENVIRONMENT", "OTEL_EXPORTER"} {
				t.Setenv(key, tt.env[key])
			}

			got := adapter.ConfigFromEnv()
			if got != tt.want {
				t.Errorf("ConfigFromEnv() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
