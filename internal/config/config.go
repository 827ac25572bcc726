package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TenantFallback is one hard-known school identity tried when the
// directory search yields nothing. Kept in config, not in code.
type TenantFallback struct {
	TenantID string `yaml:"tenant_id"`
	Server   string `yaml:"server"`
}

type Config struct {
	UntisUsername   string `yaml:"untis_username"`
	UntisPassword   string `yaml:"untis_password"`
	UntisSearchTerm string `yaml:"untis_search_term"`
	UntisLocality   string `yaml:"untis_locality"`
	UntisSchoolHint string `yaml:"untis_school"`
	UntisServerHint string `yaml:"untis_server"`

	UntisFallbackCandidates []TenantFallback `yaml:"untis_fallback_candidates"`

	MoodleBaseURL  string `yaml:"moodle_base_url"`
	MoodleUsername string `yaml:"moodle_username"`
	MoodlePassword string `yaml:"moodle_password"`

	AIProvider      string `yaml:"ai_provider"`
	AIModel         string `yaml:"ai_model"`
	AIPrompt        string `yaml:"ai_prompt"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GroqAPIKey      string `yaml:"groq_api_key"`

	DBPath                     string `yaml:"db_path"`
	ReportOutputDir            string `yaml:"report_output_dir"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	ListenAddr string `yaml:"listen_addr"`

	SlackBotToken  string   `yaml:"slack_bot_token"`
	ReminderCron   string   `yaml:"reminder_cron"`
	ReminderUsers  []string `yaml:"reminder_slack_ids"`
	RemindersOn    bool     `yaml:"reminders_enabled"`
	PrometheusOn   bool     `yaml:"prometheus_enabled"`
}

const defaultAIPrompt = "Schreibe maximal zwei simple Stichpunkte anhand der folgenden Beschreibung. " +
	"Schreibe in der Vergangenheit, aus Sicht eines Azubis. Lasse Füllwörter wie 'Ich habe' weg. " +
	"Gebe mir nur die zwei Stichpunkte im Format '- <1.Stichpunkt>\\n- <2.Stichpunkt>', sonst nichts. " +
	"Beschreibung:\n{DESCRIPTION}"

func LoadConfig() Config {
	var cfg Config

	// .env first so the overrides below see its values.
	_ = godotenv.Load()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values.
	envOverride(&cfg.UntisUsername, "UNTIS_USERNAME")
	envOverride(&cfg.UntisPassword, "UNTIS_PASSWORD")
	envOverride(&cfg.UntisSearchTerm, "UNTIS_SEARCH_TERM")
	envOverride(&cfg.UntisLocality, "UNTIS_LOCALITY")
	envOverride(&cfg.UntisSchoolHint, "UNTIS_SCHOOL")
	envOverride(&cfg.UntisServerHint, "UNTIS_SERVER")
	envOverride(&cfg.MoodleBaseURL, "MOODLE_BASE_URL")
	envOverride(&cfg.MoodleUsername, "MOODLE_USERNAME")
	envOverride(&cfg.MoodlePassword, "MOODLE_PASSWORD")
	envOverride(&cfg.AIProvider, "AI_PROVIDER")
	envOverride(&cfg.AIModel, "AI_MODEL")
	envOverride(&cfg.AIPrompt, "AI_PROMPT")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.GroqAPIKey, "GROQ_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReminderCron, "REMINDER_CRON")

	if ids := os.Getenv("REMINDER_SLACK_IDS"); ids != "" {
		cfg.ReminderUsers = nil
		for _, id := range strings.Split(ids, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.ReminderUsers = append(cfg.ReminderUsers, id)
			}
		}
	}

	// Defaults.
	if cfg.UntisSearchTerm == "" {
		cfg.UntisSearchTerm = cfg.UntisSchoolHint
	}
	if cfg.AIProvider == "" {
		cfg.AIProvider = "groq"
	}
	if cfg.AIPrompt == "" {
		cfg.AIPrompt = defaultAIPrompt
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./berichtsheft.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "localhost:3001"
	}
	if cfg.ReminderCron == "" {
		cfg.ReminderCron = "0 7 * * MON-FRI"
	}

	// Validate required fields.
	required := map[string]string{
		"untis_username": cfg.UntisUsername,
		"untis_password": cfg.UntisPassword,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}
	if cfg.UntisSearchTerm == "" && cfg.UntisSchoolHint == "" && len(cfg.UntisFallbackCandidates) == 0 {
		log.Fatalf("No way to resolve a school: set untis_search_term, untis_school or untis_fallback_candidates")
	}

	switch cfg.AIProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when ai_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when ai_provider=openai")
		}
	case "groq":
		// Groq key is optional: without it the report is generated
		// without an AI section instead of failing.
	case "none":
	default:
		log.Fatalf("ai_provider must be 'anthropic', 'openai', 'groq' or 'none', got '%s'", cfg.AIProvider)
	}

	if cfg.RemindersOn {
		if cfg.SlackBotToken == "" {
			log.Fatalf("slack_bot_token is required when reminders_enabled=true")
		}
		if len(cfg.ReminderUsers) == 0 {
			log.Fatalf("reminder_slack_ids is required when reminders_enabled=true")
		}
		if cfg.MoodleBaseURL == "" || cfg.MoodleUsername == "" {
			log.Fatalf("moodle_base_url and moodle_username are required when reminders_enabled=true")
		}
	}

	return cfg
}

// MoodleConfigured reports whether the LMS side can be fetched at all.
func (c Config) MoodleConfigured() bool {
	return c.MoodleBaseURL != "" && c.MoodleUsername != "" && c.MoodlePassword != ""
}

func (c Config) AIConfigured() bool {
	switch c.AIProvider {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "groq":
		return c.GroqAPIKey != ""
	}
	return false
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
