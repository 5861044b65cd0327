// CLAUDE:SUMMARY TOML configuration with defaults, missing-file tolerance and environment overrides for secrets
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
	Storage StorageConfig `toml:"storage"`
	Auth    AuthConfig    `toml:"auth"`
	Survey  SurveyConfig  `toml:"survey"`
	LLM     LLMConfig     `toml:"llm"`
	SMTP    SMTPConfig    `toml:"smtp"`
}

type ServerConfig struct {
	Addr          string `toml:"addr"`
	SessionTTLMin int    `toml:"session_ttl_min"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// StorageConfig selects the storage backend once at startup.
type StorageConfig struct {
	Backend     string `toml:"backend"` // csv, sqlite, postgres, memory
	CSVDir      string `toml:"csv_dir"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
	Trace       bool   `toml:"trace"`
}

type AuthConfig struct {
	JWTSecret         string `toml:"jwt_secret"`
	TokenExpiryMin    int    `toml:"token_expiry_min"`
	AdminPasswordHash string `toml:"admin_password_hash"`
}

type SurveyConfig struct {
	TopRedFlagCount   int     `toml:"top_redflag_count"`
	MinRedFlagRating  float64 `toml:"min_redflag_rating"`
	ComparisonDefault string  `toml:"comparison_default"`
	DesyncTolerance   string  `toml:"desync_tolerance"`
	SeedCatalog       bool    `toml:"seed_catalog"`
}

type LLMConfig struct {
	GroqAPIKey       string `toml:"groq_api_key"`
	HuggingFaceKey   string `toml:"huggingface_api_key"`
	OpenAIAPIKey     string `toml:"openai_api_key"`
	GeminiAPIKey     string `toml:"gemini_api_key"`
	AnthropicAPIKey  string `toml:"anthropic_api_key"`
	InsightModel     string `toml:"insight_model"`
	InsightMaxTokens int    `toml:"insight_max_tokens"`
}

// SMTPConfig is considered disabled unless sender credentials are present.
type SMTPConfig struct {
	Server         string `toml:"server"`
	Port           int    `toml:"port"`
	SenderEmail    string `toml:"sender_email"`
	SenderPassword string `toml:"sender_password"`
}

func (c SMTPConfig) Enabled() bool {
	return c.Server != "" && c.SenderEmail != "" && c.SenderPassword != ""
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			SessionTTLMin: 120,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Backend:    "csv",
			CSVDir:     "data",
			SQLitePath: "data/redflag.db",
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 240,
		},
		Survey: SurveyConfig{
			TopRedFlagCount:   5,
			MinRedFlagRating:  5.0,
			ComparisonDefault: "0.5",
			DesyncTolerance:   "0.000001",
			SeedCatalog:       true,
		},
		LLM: LLMConfig{
			InsightMaxTokens: 200,
		},
		SMTP: SMTPConfig{
			Server: "smtp.gmail.com",
			Port:   587,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and SMTP settings from the environment.
// lookup is os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SMTP_SERVER", &c.SMTP.Server)
	str("SENDER_EMAIL", &c.SMTP.SenderEmail)
	str("SENDER_PASSWORD", &c.SMTP.SenderPassword)
	str("GROQ_API_KEY", &c.LLM.GroqAPIKey)
	str("HUGGINGFACE_API_KEY", &c.LLM.HuggingFaceKey)
	str("OPENAI_API_KEY", &c.LLM.OpenAIAPIKey)
	str("GEMINI_API_KEY", &c.LLM.GeminiAPIKey)
	str("ANTHROPIC_API_KEY", &c.LLM.AnthropicAPIKey)
	str("REDFLAG_JWT_SECRET", &c.Auth.JWTSecret)
	str("DATABASE_URL", &c.Storage.PostgresURL)

	if v, ok := lookup("SMTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing SMTP_PORT: %w", err)
		}
		c.SMTP.Port = port
	}
	return nil
}
