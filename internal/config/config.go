package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Trial policy
	TrialEnforcement bool
	TrialCallBudget  time.Duration

	// Call session lifecycle
	SessionIdleTTL time.Duration
	HandleTTL      time.Duration
	ReaperInterval time.Duration

	// Turn processing
	CompletionDeadline time.Duration
	MaxHistoryTurns    int

	// Language policy
	DefaultLanguage    string
	SwitchConfirmTurns int

	// Setup session tokens
	SetupTokenSecret string
	SetupTokenTTL    time.Duration

	// LLM providers
	AWSRegion           string
	AWSEndpointOverride string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string

	// Redis (optional; in-memory stores are used when empty)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Rate limits (requests per second; zero disables a limiter)
	SetupRateLimit      float64
	SetupRateBurst      int
	VoiceStartRateLimit float64
	VoiceStartRateBurst int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TrialEnforcement: getEnvAsBool("TRIAL_ENFORCEMENT", true),
		TrialCallBudget:  getEnvAsDuration("TRIAL_CALL_BUDGET", 3*time.Minute),

		SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", 10*time.Minute),
		HandleTTL:      getEnvAsDuration("SETUP_HANDLE_TTL", 1*time.Hour),
		ReaperInterval: getEnvAsDuration("REAPER_INTERVAL", 10*time.Minute),

		CompletionDeadline: getEnvAsDuration("COMPLETION_DEADLINE", 10*time.Second),
		MaxHistoryTurns:    getEnvAsInt("MAX_HISTORY_TURNS", 24),

		DefaultLanguage:    strings.ToLower(getEnv("DEFAULT_LANGUAGE", "en")),
		SwitchConfirmTurns: getEnvAsInt("SWITCH_CONFIRM_TURNS", 2),

		SetupTokenSecret: getEnv("SETUP_TOKEN_SECRET", ""),
		SetupTokenTTL:    getEnvAsDuration("SETUP_TOKEN_TTL", 1*time.Hour),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SetupRateLimit:      getEnvAsFloat("SETUP_RATE_LIMIT", 1),
		SetupRateBurst:      getEnvAsInt("SETUP_RATE_BURST", 5),
		VoiceStartRateLimit: getEnvAsFloat("VOICE_START_RATE_LIMIT", 2),
		VoiceStartRateBurst: getEnvAsInt("VOICE_START_RATE_BURST", 10),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
