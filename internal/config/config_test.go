package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Load config without a config file (use defaults)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}

	if cfg.Ingestion.QueueCapacity != 1000 {
		t.Errorf("Ingestion.QueueCapacity = %d, want 1000", cfg.Ingestion.QueueCapacity)
	}

	if cfg.Batch.Size != 50 {
		t.Errorf("Batch.Size = %d, want 50", cfg.Batch.Size)
	}

	if cfg.Batch.FlushInterval != 5*time.Second {
		t.Errorf("Batch.FlushInterval = %v, want 5s", cfg.Batch.FlushInterval)
	}

	if cfg.Sheets.RawTable != "Ringba Raw" {
		t.Errorf("Sheets.RawTable = %q, want %q", cfg.Sheets.RawTable, "Ringba Raw")
	}

	if cfg.Sheets.RefreshInterval != 5*time.Minute {
		t.Errorf("Sheets.RefreshInterval = %v, want 5m", cfg.Sheets.RefreshInterval)
	}

	if cfg.Rebuild.WindowDays != 30 {
		t.Errorf("Rebuild.WindowDays = %d, want 30", cfg.Rebuild.WindowDays)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}

	if len(cfg.Webhook.Campaigns) != 0 {
		t.Errorf("Webhook.Campaigns should default empty, got %v", cfg.Webhook.Campaigns)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
webhook:
  secret: hook-secret
  campaigns:
    - A
    - B
batch:
  size: 3
  flush_interval: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Webhook.Secret != "hook-secret" {
		t.Errorf("Webhook.Secret = %q", cfg.Webhook.Secret)
	}
	if len(cfg.Webhook.Campaigns) != 2 {
		t.Errorf("Webhook.Campaigns = %v, want [A B]", cfg.Webhook.Campaigns)
	}
	if cfg.Batch.Size != 3 {
		t.Errorf("Batch.Size = %d, want 3", cfg.Batch.Size)
	}
	if cfg.Batch.FlushInterval != 250*time.Millisecond {
		t.Errorf("Batch.FlushInterval = %v, want 250ms", cfg.Batch.FlushInterval)
	}

	// Defaults still apply for keys the file omits.
	if cfg.Sheets.MapTable != "DID Publisher Map" {
		t.Errorf("Sheets.MapTable = %q, want default", cfg.Sheets.MapTable)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CALLRELAY_SERVER_PORT", "9999")
	t.Setenv("CALLRELAY_WEBHOOK_SECRET", "env-secret")
	t.Setenv("CALLRELAY_DATABASE_POSTGRES_PASSWORD", "env-pw")
	t.Setenv("CALLRELAY_SHEETS_URL", "http://bridge:9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 from CALLRELAY_SERVER_PORT", cfg.Server.Port)
	}
	if cfg.Webhook.Secret != "env-secret" {
		t.Errorf("Webhook.Secret = %q, want env-secret", cfg.Webhook.Secret)
	}
	if cfg.Database.Postgres.Password != "env-pw" {
		t.Errorf("Database.Postgres.Password = %q, want env-pw", cfg.Database.Postgres.Password)
	}
	if cfg.Sheets.URL != "http://bridge:9090" {
		t.Errorf("Sheets.URL = %q, want http://bridge:9090", cfg.Sheets.URL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CALLRELAY_SERVER_PORT", "9001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want env value 9001 over file value 9000", cfg.Server.Port)
	}
}

func TestPostgresConfig_ConnString(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, Database: "callrelay",
		User: "relay", Password: "pw", SSLMode: "disable",
	}
	want := "postgres://relay:pw@db:5432/callrelay?sslmode=disable"
	if got := p.ConnString(); got != want {
		t.Errorf("ConnString() = %q, want %q", got, want)
	}
}
