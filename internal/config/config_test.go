package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UNTIS_USERNAME", "student")
	t.Setenv("UNTIS_PASSWORD", "secret")
	t.Setenv("UNTIS_SEARCH_TERM", "Example-School")
}

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	setMinimalValidConfigEnv(t)
	t.Setenv("REMINDER_SLACK_IDS", "U12345, U67890")

	cfg := LoadConfig()

	if cfg.UntisUsername != "student" {
		t.Fatalf("unexpected untis username: %q", cfg.UntisUsername)
	}
	if cfg.AIProvider != "groq" {
		t.Fatalf("unexpected ai provider default: %q", cfg.AIProvider)
	}
	if cfg.DBPath != "./berichtsheft.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.ReportOutputDir != "./reports" {
		t.Fatalf("unexpected report output dir default: %q", cfg.ReportOutputDir)
	}
	if cfg.ListenAddr != "localhost:3001" {
		t.Fatalf("unexpected listen addr default: %q", cfg.ListenAddr)
	}
	if len(cfg.ReminderUsers) != 2 {
		t.Fatalf("expected 2 reminder IDs, got %d", len(cfg.ReminderUsers))
	}
	if cfg.AIPrompt == "" {
		t.Fatal("expected a default ai_prompt")
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
untis_username: "yaml-user"
untis_password: "yaml-pass"
untis_search_term: "Example-School"
untis_locality: "Springfield"
ai_provider: "anthropic"
anthropic_api_key: "yaml-key"
db_path: "/tmp/yaml.db"
untis_fallback_candidates:
  - tenant_id: "example-school"
    server: "ajax.webuntis.com"
  - tenant_id: "exampleschool"
    server: "ajax.webuntis.com"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("UNTIS_USERNAME", "env-user")

	cfg := LoadConfig()

	if cfg.UntisUsername != "env-user" {
		t.Fatalf("env must override yaml, got %q", cfg.UntisUsername)
	}
	if cfg.UntisPassword != "yaml-pass" {
		t.Fatalf("unexpected password: %q", cfg.UntisPassword)
	}
	if cfg.DBPath != "/tmp/yaml.db" {
		t.Fatalf("unexpected db path: %q", cfg.DBPath)
	}
	if len(cfg.UntisFallbackCandidates) != 2 {
		t.Fatalf("expected 2 fallback candidates, got %d", len(cfg.UntisFallbackCandidates))
	}
	if cfg.UntisFallbackCandidates[0].TenantID != "example-school" {
		t.Fatalf("unexpected first fallback: %+v", cfg.UntisFallbackCandidates[0])
	}
}

func TestMoodleConfigured(t *testing.T) {
	cfg := Config{}
	if cfg.MoodleConfigured() {
		t.Fatal("empty config must not report moodle as configured")
	}
	cfg = Config{MoodleBaseURL: "https://lms.example.org", MoodleUsername: "u", MoodlePassword: "p"}
	if !cfg.MoodleConfigured() {
		t.Fatal("full moodle config must report configured")
	}
}
