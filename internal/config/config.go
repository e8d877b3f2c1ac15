package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string // PostgreSQL with pgvector - messages, clients, templates, feedback
	Version     string
	LogLevel    string
	AutoMigrate bool // Apply pending schema migrations at startup

	OpenAIKey                      string
	AzureOpenAIKey                 string
	AzureOpenAIEndpoint            string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	OpenAITimeout                  int // OpenAI API timeout in seconds
	EmbeddingDimensions            int // Fixed vector length of the embedding column

	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphMailbox      string // Mailbox read through Graph, also the "current user" address
	GraphBaseURL      string
	GraphTimeout      int // Graph API timeout in seconds

	SummaryDelayMs     int // Pause between summary requests
	EmbeddingBatchSize int
	TaskRetentionMins  int // How long finished tasks stay visible

	AdminEmails []string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", true),

		OpenAIKey:                      os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIKey:                 os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		OpenAITimeout:                  getEnvInt("OPENAI_TIMEOUT", 60),
		EmbeddingDimensions:            getEnvInt("EMBEDDING_DIMENSIONS", 1536),

		GraphTenantID:     os.Getenv("GRAPH_TENANT_ID"),
		GraphClientID:     os.Getenv("GRAPH_CLIENT_ID"),
		GraphClientSecret: os.Getenv("GRAPH_CLIENT_SECRET"),
		GraphMailbox:      os.Getenv("GRAPH_MAILBOX"),
		GraphBaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		GraphTimeout:      getEnvInt("GRAPH_TIMEOUT", 30),

		SummaryDelayMs:     getEnvInt("SUMMARY_DELAY_MS", 1000),
		EmbeddingBatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 50),
		TaskRetentionMins:  getEnvInt("TASK_RETENTION_MINUTES", 30),

		AdminEmails: getEnvList("ADMIN_EMAILS"),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI is configured as the primary provider
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIKey != "" && c.AzureOpenAIEndpoint != ""
}

// HasOpenAIFallback reports whether the OpenAI platform key is set
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// HasGraphCredentials reports whether the mailbox API can be reached
func (c *Config) HasGraphCredentials() bool {
	return c.GraphTenantID != "" && c.GraphClientID != "" && c.GraphClientSecret != "" && c.GraphMailbox != ""
}

// SummaryDelay returns the pause between summary requests
func (c *Config) SummaryDelay() time.Duration {
	return time.Duration(c.SummaryDelayMs) * time.Millisecond
}

// TaskRetention returns how long terminal tasks are kept in memory
func (c *Config) TaskRetention() time.Duration {
	return time.Duration(c.TaskRetentionMins) * time.Minute
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "clientreports").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
