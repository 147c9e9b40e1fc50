package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Realtime RealtimeConfig
	Ai       AIConfig
	Client   ClientConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	ChannelLogFilePath string
	CorsAllowedOrigins string
	JWTSecret          string
	HistoryLimit       int
	SendRatePerSecond  float64
	SendBurst          int
	MetricsEnabled     bool
}

// TracingConfig drives the OTLP exporter. Tracing is off unless
// OTEL_ENABLED=true.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

type DatabaseConfig struct {
	// Connection is a postgres DSN. Empty runs the backend on in-memory
	// repositories.
	Connection string
	Debug      bool
}

// RealtimeConfig leaves NatsURL and RedisURL empty by default: a single
// instance then fans channel events out through its own hub.
type RealtimeConfig struct {
	NatsURL       string
	NatsToken     string
	RedisURL      string
	ChannelPrefix string
	EventTopic    string
	Durable       string
}

type AIConfig struct {
	LLMProvider   string // "ollama"
	OllamaBaseURL string
	LLMModel      string // e.g. "llama3", "qwen2.5"
	SystemPrompt  string
	ContextWindow int
}

// ClientConfig configures cmd/support-chat.
type ClientConfig struct {
	APIBaseURL  string
	Token       string
	Mode        string
	HTTPTimeout time.Duration
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			ChannelLogFilePath: getEnv("CHANNEL_LOG_FILE_PATH", "logs/support-channel.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			HistoryLimit:       getEnvAsInt("CHAT_HISTORY_LIMIT", 200),
			SendRatePerSecond:  getEnvAsFloat("CHAT_SEND_RATE", 1),
			SendBurst:          getEnvAsInt("CHAT_SEND_BURST", 5),
			MetricsEnabled:     getEnvAsBool("METRICS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			Debug:      getEnvAsBool("DB_DEBUG", false),
		},
		Realtime: RealtimeConfig{
			NatsURL:       getEnv("NATS_URL", ""),
			NatsToken:     getEnv("NATS_TOKEN", ""),
			RedisURL:      getEnv("REDIS_URL", ""),
			ChannelPrefix: getEnv("CHANNEL_PREFIX", "support-chat"),
			EventTopic:    getEnv("CHANNEL_EVENT_TOPIC", "support_chat_events"),
			Durable:       getEnv("CHANNEL_DURABLE", "support-chat-ws"),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			SystemPrompt:  getEnv("AI_SYSTEM_PROMPT", defaultSystemPrompt),
			ContextWindow: getEnvAsInt("AI_CONTEXT_WINDOW", 20),
		},
		Client: ClientConfig{
			APIBaseURL:  getEnv("CHAT_API_BASE_URL", "http://localhost:3000"),
			Token:       getEnv("CHAT_TOKEN", ""),
			Mode:        getEnv("CHAT_MODE", "support"),
			HTTPTimeout: getEnvAsDuration("CHAT_HTTP_TIMEOUT", 30*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "tourbook-support-chat"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}
}

const defaultSystemPrompt = "You are the travel assistant of a tour booking platform. " +
	"Answer questions about tours, itineraries and bookings briefly. " +
	"If the traveller needs a human, tell them to switch to support chat."

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
