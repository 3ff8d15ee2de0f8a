package observability

import (
	"context"
	"testing"

	"github.com/fairyhunter13/ai-release-gate/internal/config"
)

func TestSetupTracing_DisabledByEmptyEndpoint(t *testing.T) {
	cfg := config.Config{EnableTelemetry: true, OTLPEndpoint: ""}
	shutdown, err := SetupTracing(cfg, "gateway")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if shutdown != nil {
		t.Fatal("expected nil shutdown when disabled")
	}
}

func TestSetupTracing_DisabledByFlag(t *testing.T) {
	cfg := config.Config{EnableTelemetry: false, OTLPEndpoint: "localhost:4317"}
	shutdown, err := SetupTracing(cfg, "gateway")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if shutdown != nil {
		t.Fatal("expected nil shutdown when disabled")
	}
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	cfg := config.Config{
		EnableTelemetry: true,
		OTLPEndpoint:    "localhost:4317",
	}

	// This may or may not fail depending on the environment
	// We just test that the function can be called
	shutdown, err := SetupTracing(cfg, "test-service")
	if err != nil {
		// Expected error when no OTLP server is running
		if shutdown != nil {
			t.Fatal("expected nil shutdown function on error")
		}
	} else {
		// If no error, we should have a shutdown function
		if shutdown != nil {
			_ = shutdown(context.Background())
		}
	}
}
