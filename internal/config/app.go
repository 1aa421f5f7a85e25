package config

import (
	"fmt"
	"kenchat/internal/logger"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	OpenAI    OpenAIConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cost      CostConfig
	Summary   SummaryConfig
	Models    *ModelsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string
	SeedDemoUser bool
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds the connection settings for the shared rate-limit store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenAIConfig holds the upstream completion API configuration
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret         []byte
	TokenExpiration   time.Duration
	RefreshExpiration time.Duration
	BcryptCost        int
}

// RateLimitConfig holds per-client request limiting configuration
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int64
}

// CostConfig holds the cost ceilings and alerting configuration.
// A zero limit means that tier is not configured.
type CostConfig struct {
	DailyLimitUSD   float64
	WeeklyLimitUSD  float64
	MonthlyLimitUSD float64
	WarningPercent  float64
	AlertWebhookURL string
	RetentionDays   int
}

// SummaryConfig holds conversation summarization thresholds
type SummaryConfig struct {
	MaxTokensBeforeSummarization int
	PreserveRecentMessages       int
	MaxSummaryTokens             int
	Model                        string
	Prompt                       string
	LockTimeout                  time.Duration
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:         getEnvOrDefault("SERVER_PORT", "8080"),
		SeedDemoUser: getEnvAsBool("SEED_DEMO_USER", false),
	}

	config.Database = DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "postgres"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:     getEnvOrDefault("DB_NAME", "kenchat"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	config.Redis = RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", "redis:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Log.Warn("OPENAI_API_KEY environment variable not set")
	}

	config.OpenAI = OpenAIConfig{
		APIKey:         apiKey,
		BaseURL:        getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		RequestTimeout: getEnvAsDuration("OPENAI_REQUEST_TIMEOUT", 120*time.Second),
		MaxRetries:     getEnvAsInt("OPENAI_MAX_RETRIES", 3),
		BackoffBase:    getEnvAsDuration("OPENAI_BACKOFF_BASE", time.Second),
		BackoffCap:     getEnvAsDuration("OPENAI_BACKOFF_CAP", 30*time.Second),
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}

	config.Auth = AuthConfig{
		JWTSecret:         []byte(jwtSecret),
		TokenExpiration:   getEnvAsDuration("JWT_TOKEN_EXPIRATION", 24*time.Hour),
		RefreshExpiration: getEnvAsDuration("JWT_REFRESH_EXPIRATION", 7*24*time.Hour),
		BcryptCost:        getEnvAsInt("BCRYPT_ROUNDS", 12),
	}

	config.RateLimit = RateLimitConfig{
		Window:      getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		MaxRequests: int64(getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 60)),
	}

	config.Cost = CostConfig{
		DailyLimitUSD:   getEnvAsFloat("COST_DAILY_LIMIT_USD", 0),
		WeeklyLimitUSD:  getEnvAsFloat("COST_WEEKLY_LIMIT_USD", 0),
		MonthlyLimitUSD: getEnvAsFloat("COST_MONTHLY_LIMIT_USD", 0),
		WarningPercent:  getEnvAsFloat("COST_WARNING_THRESHOLD_PERCENT", 80),
		AlertWebhookURL: os.Getenv("COST_ALERT_WEBHOOK_URL"),
		RetentionDays:   getEnvAsInt("USAGE_LOG_RETENTION_DAYS", 90),
	}

	config.Summary = SummaryConfig{
		MaxTokensBeforeSummarization: getEnvAsInt("SUMMARY_MAX_TOKENS_BEFORE", 8000),
		PreserveRecentMessages:       getEnvAsInt("SUMMARY_PRESERVE_RECENT_MESSAGES", 6),
		MaxSummaryTokens:             getEnvAsInt("SUMMARY_MAX_TOKENS", 600),
		Model:                        os.Getenv("SUMMARY_MODEL"),
		Prompt:                       getEnvOrDefault("SUMMARY_PROMPT", getDefaultSummarizationPrompt()),
		LockTimeout:                  getEnvAsDuration("SUMMARY_LOCK_TIMEOUT", 2*time.Minute),
	}

	modelsConfigPath := getEnvOrDefault("MODELS_CONFIG_PATH", filepath.Join("config", "models.json"))
	modelsConfig, err := NewModelsConfig(modelsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load models config: %w", err)
	}
	config.Models = modelsConfig

	return config, nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid float value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid boolean value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}

func getDefaultSummarizationPrompt() string {
	return `You are a conversation summarizer. Your task is to create a concise summary of the conversation provided.

Instructions:
1. Capture the main topics discussed
2. Note key decisions or conclusions
3. Preserve important context needed for future messages
4. Keep the summary brief but informative
5. Use clear, neutral language

Provide only the summary, without any preamble or additional commentary.`
}
