package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"watchwise/internal/conversation"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StoragePostgres StorageDriver = "postgres"
)

type Config struct {
	// HTTP server
	HTTPAddr          string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"90s"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`

	// MCP server
	MCPAddr string `env:"MCP_ADDR" envDefault:":8081"`

	// Auth
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel   string      `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	LLMTemperature   float32     `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`
	ExtractWithLLM   bool        `env:"EXTRACT_WITH_LLM" envDefault:"false"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Circuit breaker
	BreakerFailures    uint32        `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	// Storage
	StorageDriver StorageDriver `env:"STORAGE_DRIVER" envDefault:"memory"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	JournalPath   string        `env:"JOURNAL_PATH" envDefault:"logs/events.jsonl"`

	// Conversation policy
	RequiredWeight int `env:"POLICY_REQUIRED_WEIGHT" envDefault:"12"`
	OptionalWeight int `env:"POLICY_OPTIONAL_WEIGHT" envDefault:"8"`
	ReadyThreshold int `env:"POLICY_THRESHOLD" envDefault:"90"`
	MinQuestions   int `env:"POLICY_MIN_QUESTIONS" envDefault:"7"`
	MaxQuestions   int `env:"POLICY_MAX_QUESTIONS" envDefault:"13"`
	MinGenres      int `env:"POLICY_MIN_GENRES" envDefault:"2"`

	// Retrieval
	SeedCount       int     `env:"RETRIEVAL_SEEDS" envDefault:"10"`
	MatchCount      int     `env:"RETRIEVAL_MATCH_COUNT" envDefault:"20"`
	MatchThreshold  float64 `env:"RETRIEVAL_MATCH_THRESHOLD" envDefault:"0.70"`
	CandidateLimit  int     `env:"RETRIEVAL_CANDIDATES" envDefault:"30"`
	HistoryLimit    int     `env:"PATTERN_HISTORY_LIMIT" envDefault:"30"`
	RegionHintsPath string  `env:"REGION_HINTS_PATH"`

	// Synthesis
	SynthMaxRetries     int `env:"SYNTH_MAX_RETRIES" envDefault:"3"`
	SynthRepairAttempts int `env:"SYNTH_REPAIR_ATTEMPTS" envDefault:"2"`

	// Embedding indexer
	IndexerWorkers    int           `env:"INDEXER_WORKERS" envDefault:"2"`
	IndexerQueueSize  int           `env:"INDEXER_QUEUE_SIZE" envDefault:"256"`
	IndexerJobTimeout time.Duration `env:"INDEXER_JOB_TIMEOUT" envDefault:"2m"`
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE" envDefault:"*/30 * * * *"`
	ReportSchedule    string        `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Telegram
	TelegramBotToken  string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers      []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID       int64   `env:"ADMIN_USER"`
	AllowlistFilePath string  `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`
	PendingFilePath   string  `env:"PENDING_FILE_PATH" envDefault:"data/pending.json"`
	DefaultRegion     string  `env:"DEFAULT_REGION" envDefault:"United States"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("conversation policy: %w", err)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold >= 1 {
		return fmt.Errorf("RETRIEVAL_MATCH_THRESHOLD must be in [0,1), got %v", c.MatchThreshold)
	}
	return nil
}

// Policy is the conversation readiness policy.
func (c *Config) Policy() conversation.Policy {
	return conversation.Policy{
		RequiredWeight: c.RequiredWeight,
		OptionalWeight: c.OptionalWeight,
		Threshold:      c.ReadyThreshold,
		MinQuestions:   c.MinQuestions,
		MaxQuestions:   c.MaxQuestions,
		MinGenres:      c.MinGenres,
	}
}

// SetupLogging applies LOG_LEVEL to the global logger.
func (c *Config) SetupLogging() {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, using info", c.LogLevel)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
