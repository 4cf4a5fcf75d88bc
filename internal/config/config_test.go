package config

import (
	"os"
	"testing"
	"time"
)

func setRequired() {
	os.Clearenv()
	os.Setenv("GENIEACS_URL", "http://acs:7557")
	os.Setenv("SESSION_SECRET", "0123456789abcdef")
	os.Setenv("ADMIN_PASSWORD_HASH", "$2a$12$abcdefghijklmnopqrstuv")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":3000")
	}
	if cfg.GRPCAddr != ":8081" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8081")
	}
	if cfg.GenieACSTimeout != 15*time.Second {
		t.Errorf("GenieACSTimeout = %v, want 15s", cfg.GenieACSTimeout)
	}
	if cfg.GatewayTimeout != 15*time.Second {
		t.Errorf("GatewayTimeout = %v, want 15s", cfg.GatewayTimeout)
	}
	if cfg.FonnteURL != "https://api.fonnte.com/send" {
		t.Errorf("FonnteURL = %q, want default", cfg.FonnteURL)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Errorf("SessionTTL = %v, want 12h", cfg.SessionTTL)
	}
	if cfg.SettingsFile != "settings.json" {
		t.Errorf("SettingsFile = %q, want settings.json", cfg.SettingsFile)
	}
	if cfg.OTPStore != OTPStoreMemory {
		t.Errorf("OTPStore = %q, want memory", cfg.OTPStore)
	}
	if cfg.OTPSweepInterval != time.Minute {
		t.Errorf("OTPSweepInterval = %v, want 1m", cfg.OTPSweepInterval)
	}
	if cfg.RefreshConcurrency != 8 {
		t.Errorf("RefreshConcurrency = %d, want 8", cfg.RefreshConcurrency)
	}
	if cfg.RefreshSettleDelay != 3*time.Second {
		t.Errorf("RefreshSettleDelay = %v, want 3s", cfg.RefreshSettleDelay)
	}
	if cfg.AdminUsername != "admin" {
		t.Errorf("AdminUsername = %q, want admin", cfg.AdminUsername)
	}
	if cfg.TelemetryKafkaTopic != "portal-telemetry" {
		t.Errorf("TelemetryKafkaTopic = %q, want portal-telemetry", cfg.TelemetryKafkaTopic)
	}
	if cfg.IsProduction() {
		t.Error("IsProduction should default to false")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setRequired()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("GENIEACS_TIMEOUT", "5s")
	os.Setenv("REFRESH_CONCURRENCY", "3")
	os.Setenv("OTP_SWEEP_INTERVAL", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.GenieACSTimeout != 5*time.Second {
		t.Errorf("GenieACSTimeout = %v, want 5s", cfg.GenieACSTimeout)
	}
	if cfg.RefreshConcurrency != 3 {
		t.Errorf("RefreshConcurrency = %d, want 3", cfg.RefreshConcurrency)
	}
	if cfg.OTPSweepInterval != 0 {
		t.Errorf("OTPSweepInterval = %v, want 0", cfg.OTPSweepInterval)
	}
}

func TestLoad_Required(t *testing.T) {
	testCases := []struct {
		name  string
		unset string
		set   map[string]string
		want  string
	}{
		{name: "genieacs url", unset: "GENIEACS_URL", want: "config: GENIEACS_URL must be set"},
		{name: "session secret", unset: "SESSION_SECRET", want: "config: SESSION_SECRET must be at least 16 bytes"},
		{name: "short session secret", set: map[string]string{"SESSION_SECRET": "short"}, want: "config: SESSION_SECRET must be at least 16 bytes"},
		{name: "admin password", unset: "ADMIN_PASSWORD_HASH", want: "config: ADMIN_PASSWORD_HASH or ADMIN_PASSWORD must be set"},
		{name: "otp store", set: map[string]string{"OTP_STORE": "disk"}, want: "config: OTP_STORE must be memory or redis"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired()
			if tc.unset != "" {
				os.Unsetenv(tc.unset)
			}
			for k, v := range tc.set {
				os.Setenv(k, v)
			}
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
			if err.Error() != tc.want {
				t.Errorf("error = %q, want %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLoad_PlainAdminPasswordProduction(t *testing.T) {
	setRequired()
	os.Unsetenv("ADMIN_PASSWORD_HASH")
	os.Setenv("ADMIN_PASSWORD", "admin123")
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject ADMIN_PASSWORD in production")
	}

	os.Setenv("APP_ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminPassword != "admin123" {
		t.Errorf("AdminPassword = %q", cfg.AdminPassword)
	}
}

func TestLoad_RedisStore(t *testing.T) {
	setRequired()
	os.Setenv("OTP_STORE", "redis")
	os.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OTPStore != OTPStoreRedis || cfg.RedisAddr != "redis:6379" {
		t.Errorf("OTPStore/RedisAddr = %q/%q", cfg.OTPStore, cfg.RedisAddr)
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	testCases := []struct {
		brokers string
		want    []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" a:1 , ,b:2 ", []string{"a:1", "b:2"}},
	}
	for _, tc := range testCases {
		cfg := &Config{TelemetryKafkaBrokers: tc.brokers}
		got := cfg.TelemetryKafkaBrokersList()
		if len(got) != len(tc.want) {
			t.Errorf("brokers %q: got %v, want %v", tc.brokers, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("brokers %q: got %v, want %v", tc.brokers, got, tc.want)
			}
		}
	}
	var nilCfg *Config
	if nilCfg.TelemetryKafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}

func TestRead_SkipsServerValidation(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", "postgres://localhost/portal")
	os.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/portal" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if !cfg.OTLPInsecure {
		t.Error("OTLPInsecure = false, want true")
	}
	if cfg.ServiceName != "genieacs-portal" {
		t.Errorf("ServiceName = %q, want genieacs-portal", cfg.ServiceName)
	}
	if _, err := Load(); err == nil {
		t.Error("Load without GENIEACS_URL should fail")
	}
}
