package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	JWTSecret    string
	JWTExpiryMin int

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	ParticipantCacheTTL time.Duration
	ExchangeRateLimit   int
	RotationRateLimit   int
	RateLimitWindow     time.Duration

	// Client side, used by cvctl.
	APIBaseURL string
	APIToken   string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:             getEnv("APP_PORT", "8080"),
		AppMode:             getEnv("APP_MODE", "debug"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBUser:              getEnv("DB_USER", "postgres"),
		DBPassword:          getEnv("DB_PASSWORD", "postgres"),
		DBName:              getEnv("DB_NAME", "cloudvault"),
		DBPort:              getEnv("DB_PORT", "5432"),
		JWTSecret:           getEnv("JWT_SECRET", "change-me"),
		JWTExpiryMin:        getEnvAsInt("JWT_EXPIRY_MIN", 15),
		RedisHost:           getEnv("REDIS_HOST", "localhost"),
		RedisPort:           getEnv("REDIS_PORT", "6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		ParticipantCacheTTL: getEnvAsDuration("PARTICIPANT_CACHE_TTL", 5*time.Minute),
		ExchangeRateLimit:   getEnvAsInt("KEY_EXCHANGE_RATE_LIMIT", 30),
		RotationRateLimit:   getEnvAsInt("KEY_ROTATION_RATE_LIMIT", 5),
		RateLimitWindow:     getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		APIBaseURL:          getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		APIToken:            getEnv("API_TOKEN", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings such as "90s" or "5m".
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return fallback
}
