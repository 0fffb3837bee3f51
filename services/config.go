package services

import (
	"log/slog"
	"time"

	"github.com/krshsl/nora/interview"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	AI        AIConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	Interview InterviewConfig
}

type ServerConfig struct {
	Port          string
	SecureCookies bool
}

type DatabaseConfig struct {
	Driver       string
	URL          string
	Seed         bool
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type AIConfig struct {
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

type InterviewConfig struct {
	DefaultQuestions  int
	MaxQuestions      int
	MaxDuration       time.Duration
	FeedbackWorkers   int
	FeedbackQueueSize int
	SweepSchedule     string
}

var envBindings = map[string]string{
	"server.port":                   "SERVER_PORT",
	"server.secure_cookies":         "SERVER_SECURE_COOKIES",
	"websocket.allowed_origins":     "WEBSOCKET_ALLOWED_ORIGINS",
	"gemini.api_key":                "GEMINI_API_KEY",
	"gemini.model":                  "GEMINI_MODEL",
	"gemini.timeout":                "GEMINI_TIMEOUT",
	"jwt.secret":                    "JWT_SECRET",
	"database.driver":               "DATABASE_DRIVER",
	"database.url":                  "DATABASE_URL",
	"database.seed":                 "DATABASE_SEED",
	"database.log_level":            "DATABASE_LOG_LEVEL",
	"database.max_idle_conns":       "DATABASE_MAX_IDLE_CONNS",
	"database.max_open_conns":       "DATABASE_MAX_OPEN_CONNS",
	"interview.default_questions":   "INTERVIEW_DEFAULT_QUESTIONS",
	"interview.max_questions":       "INTERVIEW_MAX_QUESTIONS",
	"interview.max_duration":        "INTERVIEW_MAX_DURATION",
	"interview.feedback_workers":    "INTERVIEW_FEEDBACK_WORKERS",
	"interview.feedback_queue_size": "INTERVIEW_FEEDBACK_QUEUE_SIZE",
	"interview.sweep_schedule":      "INTERVIEW_SWEEP_SCHEDULE",
}

// SetDefaults registers default values and environment bindings on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("websocket.allowed_origins", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", DefaultModelName)
	v.SetDefault("gemini.timeout", "60s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.seed", false)
	v.SetDefault("database.log_level", "silent")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("interview.default_questions", 5)
	v.SetDefault("interview.max_questions", 20)
	v.SetDefault("interview.max_duration", "30m")
	v.SetDefault("interview.feedback_workers", 2)
	v.SetDefault("interview.feedback_queue_size", 64)
	v.SetDefault("interview.sweep_schedule", "@every 1m")

	for key, env := range envBindings {
		v.BindEnv(key, env)
	}
}

// LoadConfig loads configuration from the .env file and environment variables
func LoadConfig(v *viper.Viper) *Config {
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from the values already present in v
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:          v.GetString("server.port"),
			SecureCookies: v.GetBool("server.secure_cookies"),
		},
		Database: DatabaseConfig{
			Driver:       v.GetString("database.driver"),
			URL:          v.GetString("database.url"),
			Seed:         v.GetBool("database.seed"),
			LogLevel:     v.GetString("database.log_level"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
		},
		AI: AIConfig{
			GeminiAPIKey: v.GetString("gemini.api_key"),
			GeminiModel:  v.GetString("gemini.model"),
			Timeout:      v.GetDuration("gemini.timeout"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: v.GetString("websocket.allowed_origins"),
		},
		Interview: InterviewConfig{
			DefaultQuestions:  v.GetInt("interview.default_questions"),
			MaxQuestions:      v.GetInt("interview.max_questions"),
			MaxDuration:       v.GetDuration("interview.max_duration"),
			FeedbackWorkers:   v.GetInt("interview.feedback_workers"),
			FeedbackQueueSize: v.GetInt("interview.feedback_queue_size"),
			SweepSchedule:     v.GetString("interview.sweep_schedule"),
		},
	}
}

// OrchestratorOptions maps the interview settings onto orchestrator options
func (c *Config) OrchestratorOptions() interview.Options {
	return interview.Options{
		ModelTimeout:     c.AI.Timeout,
		DefaultQuestions: c.Interview.DefaultQuestions,
		MaxQuestions:     c.Interview.MaxQuestions,
		FeedbackWorkers:  c.Interview.FeedbackWorkers,
		FeedbackQueue:    c.Interview.FeedbackQueueSize,
	}
}
