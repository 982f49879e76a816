package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Questions QuestionsConfig `yaml:"questions"`
	AI        AIConfig        `yaml:"ai"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ScrapeConfig struct {
	DaysBack   int              `yaml:"days_back"`
	HTTP       HTTPConfig       `yaml:"http"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Polymarket PolymarketConfig `yaml:"polymarket"`
	Twitter    TwitterConfig    `yaml:"twitter"`
	RSS        RSSConfig        `yaml:"rss"`
}

// HTTPConfig bounds every upstream request.
type HTTPConfig struct {
	TimeoutSeconds    int `yaml:"timeout_seconds"`
	MaxAttempts       int `yaml:"max_attempts"`
	MaxElapsedSeconds int `yaml:"max_elapsed_seconds"`
}

type TelegramConfig struct {
	BaseURL        string `yaml:"base_url"`
	MaxPages       int    `yaml:"max_pages"`
	RequestDelayMS int    `yaml:"request_delay_ms"`
}

type PolymarketConfig struct {
	Endpoints []string `yaml:"endpoints"`
}

type TwitterConfig struct {
	Host          string `yaml:"host"`
	BaseURL       string `yaml:"base_url"` // overrides https://<host> when set
	APIKey        string `yaml:"api_key"`
	Count         int    `yaml:"count"`
	MinIntervalMS int    `yaml:"min_interval_ms"`
}

type RSSConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Parallel       int    `yaml:"parallel"`
	UserAgent      string `yaml:"user_agent"`
}

type QuestionsConfig struct {
	BatchSize           int     `yaml:"batch_size"`
	MinTextLength       int     `yaml:"min_text_length"`
	MaxTextChars        int     `yaml:"max_text_chars"`
	MaxTokens           int     `yaml:"max_tokens"`
	Parallel            int     `yaml:"parallel"`
	SnapshotDir         string  `yaml:"snapshot_dir"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type AIConfig struct {
	Provider       string `yaml:"provider"` // openai or gemini
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	GeminiBaseURL  string `yaml:"gemini_base_url"`
	GeminiModel    string `yaml:"gemini_model"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SchedulerConfig struct {
	IntervalMinutes     int    `yaml:"interval_minutes"` // 0 disables periodic runs
	Cron                string `yaml:"cron"`             // overrides interval_minutes when set
	GenerateAfterScrape bool   `yaml:"generate_after_scrape"`
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 300,
		},
		Database: DatabaseConfig{
			Path: "./data/prophet.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Scrape: ScrapeConfig{
			DaysBack: 2,
			HTTP: HTTPConfig{
				TimeoutSeconds:    30,
				MaxAttempts:       3,
				MaxElapsedSeconds: 60,
			},
			Telegram: TelegramConfig{
				BaseURL:        "https://t.me",
				MaxPages:       20,
				RequestDelayMS: 800,
			},
			Polymarket: PolymarketConfig{
				Endpoints: []string{
					"https://gamma-api.polymarket.com/markets?closed=false&limit=500",
					"https://gamma-api.polymarket.com/markets?active=true&limit=500",
					"https://strapi-matic.poly.market/markets?active=true&_limit=500",
					"https://gamma-api.polymarket.com/markets?limit=500",
				},
			},
			Twitter: TwitterConfig{
				Host:          "twitter-v24.p.rapidapi.com",
				Count:         50,
				MinIntervalMS: 1000,
			},
			RSS: RSSConfig{
				TimeoutSeconds: 10,
				Parallel:       8,
				UserAgent:      "Mozilla/5.0 (compatible; NewsBot/1.0)",
			},
		},
		Questions: QuestionsConfig{
			BatchSize:           50,
			MinTextLength:       20,
			MaxTextChars:        700,
			MaxTokens:           1500,
			Parallel:            1,
			SnapshotDir:         "./saved-questions",
			SimilarityThreshold: 0.9,
		},
		AI: AIConfig{
			Provider:       "openai",
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o",
			GeminiModel:    "gemini-2.5-flash",
			TimeoutSeconds: 120,
		},
		Scheduler: SchedulerConfig{
			IntervalMinutes: 0,
		},
	}
}

// Load reads a YAML config file and merges it over defaults.
// If the file does not exist, defaults are returned without error.
// Secrets and model selection are then taken from the environment
// (optionally populated from a .env file next to the working directory).
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case os.IsNotExist(err):
		slog.Info("No config file found, using defaults", "path", path)
	default:
		return cfg, err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// applyEnv overrides config values with non-empty environment variables.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.AI.APIKey, "OPENAI_API_KEY")
	set(&c.AI.Model, "OPENAI_MODEL")
	set(&c.AI.BaseURL, "OPENAI_BASE_URL")
	set(&c.AI.GeminiAPIKey, "GEMINI_API_KEY")
	set(&c.AI.GeminiModel, "GEMINI_MODEL")
	set(&c.AI.Provider, "AI_PROVIDER")
	set(&c.Scrape.Twitter.APIKey, "RAPIDAPI_KEY")
	set(&c.Scrape.Twitter.Host, "RAPIDAPI_TWITTER_HOST")
}

// Seconds converts a config integer to a duration, using fallback when n <= 0.
func Seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Millis converts a config integer to a duration; negative values mean zero.
func Millis(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
