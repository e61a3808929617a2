package app

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	QuizMaxAttempts   int
	QuizPassThreshold int
	AITimeout         time.Duration
	SessionIdleTTL    time.Duration

	ContentBaseURL    string
	ContentAuthHeader string
	ContentDir        string
	RedisAddr         string
	RedisPassword     string
	ContentCacheTTL   time.Duration

	AMQPURL      string
	AMQPExchange string

	GeminiAPIKey string
	GeminiModel  string
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string

	JWTSecret            string
	DevLoginUser         string
	DevLoginPasswordHash string
	CORSOrigins          []string
	CSRFEnforced         bool
	AIRateLimitPerMin    int
}

// LoadDotEnv reads .env when present. A missing file is not an error.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}
}

func LoadConfig() Config {
	return Config{
		AppEnv:   envOrDefault("APP_ENV", "development"),
		HTTPAddr: envOrDefault("HTTP_ADDR", ":8080"),

		DBDriver:          envOrDefault("DB_DRIVER", "sqlite"),
		DBDSN:             os.Getenv("DB_DSN"),
		DBMaxOpenConns:    intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins: intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		QuizMaxAttempts:   intOrDefault("QUIZ_MAX_ATTEMPTS", 3),
		QuizPassThreshold: intOrDefault("QUIZ_PASS_THRESHOLD", 70),
		AITimeout:         secondsOrDefault("AI_TIMEOUT_SECONDS", 0),
		SessionIdleTTL:    minutesOrDefault("SESSION_IDLE_TTL_MINUTES", 120),

		ContentBaseURL:    strings.TrimSpace(os.Getenv("CONTENT_BASE_URL")),
		ContentAuthHeader: os.Getenv("CONTENT_AUTH_HEADER"),
		ContentDir:        envOrDefault("CONTENT_DIR", "content"),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		ContentCacheTTL:   secondsOrDefault("CONTENT_CACHE_TTL_SECONDS", 600),

		AMQPURL:      strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange: envOrDefault("AMQP_EXCHANGE", "certprep.events"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMBaseURL:   strings.TrimSpace(os.Getenv("LLM_BASE_URL")),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		LLMModel:     envOrDefault("LLM_MODEL", "gpt-4o-mini"),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		DevLoginUser:         strings.TrimSpace(os.Getenv("DEV_LOGIN_USER")),
		DevLoginPasswordHash: os.Getenv("DEV_LOGIN_PASSWORD_HASH"),
		CORSOrigins:          listOrDefault("CORS_ORIGINS", []string{"http://localhost:3000"}),
		CSRFEnforced:         boolOrDefault("CSRF_ENFORCED", false),
		AIRateLimitPerMin:    intOrDefault("AI_RATE_LIMIT_PER_MIN", 20),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func secondsOrDefault(key string, fallback int) time.Duration {
	return time.Duration(intOrDefault(key, fallback)) * time.Second
}

func minutesOrDefault(key string, fallback int) time.Duration {
	return time.Duration(intOrDefault(key, fallback)) * time.Minute
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func listOrDefault(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
