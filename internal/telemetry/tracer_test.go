package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/tjfontaine/assetd/internal/config"
)

func TestInitTracer_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracer(config.TelemetryConfig{Enabled: false}, "assetd", nil)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled tracer replaced the global provider")
	}
}

func TestInitTracer_ExportsSpans(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	var out, logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	shutdown, err := initTracer(&out, "assetd-test", logger)
	if err != nil {
		t.Fatalf("initTracer() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "compile")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	if !strings.Contains(out.String(), `"Name": "compile"`) {
		t.Errorf("exported spans missing compile span:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "assetd-test") {
		t.Error("exported spans missing service name")
	}
	if !strings.Contains(logs.String(), "OpenTelemetry initialized") {
		t.Error("expected init log line")
	}
}
