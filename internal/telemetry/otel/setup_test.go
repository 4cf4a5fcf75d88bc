package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "test-service"}, nil)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatal("providers should all be non-nil")
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name     string
		endpoint string
	}{
		{"invalid characters", "://invalid"},
		{"malformed URL", "http://[invalid"},
		{"missing host", "http://"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewProviders(ctx, Options{Endpoint: tc.endpoint, ServiceName: "test-service"}, nil)
			if err == nil {
				t.Errorf("NewProviders(%q) should return error", tc.endpoint)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		endpoint     string
		override     bool
		wantTarget   string
		wantInsecure bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://collector:4317", false, "collector:4317", true},
		{"https://collector:4317", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
		{"http://localhost:4317/v1/traces", false, "localhost:4317", true},
	}
	for _, tc := range testCases {
		target, insecure, err := parseEndpoint(tc.endpoint, tc.override)
		if err != nil {
			t.Errorf("parseEndpoint(%q): %v", tc.endpoint, err)
			continue
		}
		if target != tc.wantTarget || insecure != tc.wantInsecure {
			t.Errorf("parseEndpoint(%q, %v) = %q, %v; want %q, %v",
				tc.endpoint, tc.override, target, insecure, tc.wantTarget, tc.wantInsecure)
		}
	}
}

func TestSetGlobal_WithProviders(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, Options{ServiceName: "test-service"}, nil)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	oldTracerProvider := otel.GetTracerProvider()
	oldMeterProvider := otel.GetMeterProvider()

	providers.SetGlobal()

	if otel.GetTracerProvider() == oldTracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() == oldMeterProvider {
		t.Error("MeterProvider should be updated")
	}
}
