package config

import (
	"os"
	"path/filepath"
	"testing"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Storage.Backend != "csv" {
		t.Errorf("Storage.Backend = %q, want csv", cfg.Storage.Backend)
	}
	if cfg.Survey.TopRedFlagCount != 5 {
		t.Errorf("Survey.TopRedFlagCount = %d, want 5", cfg.Survey.TopRedFlagCount)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
addr = ":9090"

[storage]
backend = "sqlite"
sqlite_path = "/tmp/x.db"

[survey]
min_redflag_rating = 6.5
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLitePath != "/tmp/x.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Survey.MinRedFlagRating != 6.5 {
		t.Errorf("MinRedFlagRating = %v, want 6.5", cfg.Survey.MinRedFlagRating)
	}
	// untouched sections keep their defaults
	if cfg.Survey.TopRedFlagCount != 5 {
		t.Errorf("TopRedFlagCount = %d, want 5", cfg.Survey.TopRedFlagCount)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\naddr="), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SMTP_SERVER":     "mail.example.org",
		"SMTP_PORT":       "2525",
		"SENDER_EMAIL":    "bot@example.org",
		"SENDER_PASSWORD": "pw",
		"GROQ_API_KEY":    "gsk_test",
	}
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.SMTP.Server != "mail.example.org" || cfg.SMTP.Port != 2525 {
		t.Errorf("SMTP = %+v", cfg.SMTP)
	}
	if !cfg.SMTP.Enabled() {
		t.Error("SMTP should be enabled with sender credentials")
	}
	if cfg.LLM.GroqAPIKey != "gsk_test" {
		t.Errorf("GroqAPIKey = %q", cfg.LLM.GroqAPIKey)
	}
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "SMTP_PORT" {
			return "abc", true
		}
		return "", false
	})
	if err == nil {
		t.Fatal("expected error for non-numeric SMTP_PORT")
	}
}

func TestSMTPDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(noEnv); err != nil {
		t.Fatal(err)
	}
	if cfg.SMTP.Enabled() {
		t.Error("SMTP should be disabled without sender credentials")
	}
}
