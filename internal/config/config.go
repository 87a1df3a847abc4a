package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	SessionTTLHours        int
	SummaryCacheTTLSeconds int
	DefaultAdminUser       string
	DefaultAdminPassword   string
	DefaultSellerUser      string
	DefaultSellerPassword  string
	LogLevel               string
	AppEnv                 string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	sessionTTL, err := strconv.Atoi(getEnv("SESSION_TTL_HOURS", "12"))
	if err != nil || sessionTTL < 1 {
		sessionTTL = 12
	}
	summaryTTL, err := strconv.Atoi(getEnv("SUMMARY_CACHE_TTL_SECONDS", "30"))
	if err != nil || summaryTTL < 1 {
		summaryTTL = 30
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		SessionTTLHours:        sessionTTL,
		SummaryCacheTTLSeconds: summaryTTL,
		DefaultAdminUser:       strings.TrimSpace(os.Getenv("DEFAULT_ADMIN_USER")),
		DefaultAdminPassword:   strings.TrimSpace(os.Getenv("DEFAULT_ADMIN_PASSWORD")),
		DefaultSellerUser:      strings.TrimSpace(os.Getenv("DEFAULT_SELLER_USER")),
		DefaultSellerPassword:  strings.TrimSpace(os.Getenv("DEFAULT_SELLER_PASSWORD")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		AppEnv:                 getEnv("APP_ENV", "development"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Development() bool {
	return c.AppEnv != "production"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
