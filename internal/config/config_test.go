package config_test

import (
	"strings"
	"testing"

	"workforce/status-service/internal/config"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STATUS_HTTP_PORT", "STATUS_GRPC_PORT", "DATABASE_URL", "STATUS_SQLITE_PATH", "REDIS_URL",
		"ACK_REMINDER_INTERVAL_HOURS", "ACK_REMINDER_MIN_AGE_HOURS", "BULK_ENGAGE_CONCURRENCY",
		"OTEL_EXPORTER_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATUS_SQLITE_PATH", "/tmp/status.db")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "8083" || cfg.GRPCPort != "9083" {
		t.Errorf("ports = %s/%s, want 8083/9083", cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.AckReminderIntervalHours != 24 || cfg.AckReminderMinAgeHours != 48 {
		t.Errorf("reminder = %d/%d, want 24/48", cfg.AckReminderIntervalHours, cfg.AckReminderMinAgeHours)
	}
	if cfg.BulkEngageConcurrency != 8 {
		t.Errorf("BulkEngageConcurrency = %d, want 8", cfg.BulkEngageConcurrency)
	}
	if cfg.UsePostgres() {
		t.Error("UsePostgres = true without DATABASE_URL")
	}
}

func TestLoad_PostgresWinsOverSQLite(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/status")
	t.Setenv("STATUS_SQLITE_PATH", "/tmp/status.db")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.UsePostgres() {
		t.Error("UsePostgres = false with DATABASE_URL set")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "no storage",
			env:     map[string]string{},
			wantErr: "DATABASE_URL or STATUS_SQLITE_PATH",
		},
		{
			name:    "zero interval",
			env:     map[string]string{"STATUS_SQLITE_PATH": "x.db", "ACK_REMINDER_INTERVAL_HOURS": "0"},
			wantErr: "ACK_REMINDER_INTERVAL_HOURS",
		},
		{
			name:    "negative concurrency",
			env:     map[string]string{"STATUS_SQLITE_PATH": "x.db", "BULK_ENGAGE_CONCURRENCY": "-2"},
			wantErr: "BULK_ENGAGE_CONCURRENCY",
		},
		{
			name:    "non-numeric min age",
			env:     map[string]string{"STATUS_SQLITE_PATH": "x.db", "ACK_REMINDER_MIN_AGE_HOURS": "two days"},
			wantErr: "parse env",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
