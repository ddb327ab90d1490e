package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	StoreID                 string
	POSBaseURL              string
	POSToken                string
	POSTimeoutSeconds       int
	POSRateLimitPerMin      int
	ShiftTimezone           string
	ShiftStartHour          int
	ShiftEndHour            int
	CatalogPath             string
	AnalysisCacheTTLSeconds int
	AuthSecret              string
	AccessTokenTTLMinutes   int
	LogLevel                string
}

func Load() Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_STORE_ID", "")
	v.SetDefault("POS_BASE_URL", "https://api.loyverse.com/v1.0")
	v.SetDefault("POS_TIMEOUT_SECONDS", 30)
	v.SetDefault("POS_RATE_LIMIT_PER_MIN", 60)
	v.SetDefault("SHIFT_TIMEZONE", "Asia/Bangkok")
	v.SetDefault("SHIFT_START_HOUR", 18)
	v.SetDefault("SHIFT_END_HOUR", 3)
	v.SetDefault("ANALYSIS_CACHE_TTL_SECONDS", 300)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := Config{
		Port:                    v.GetString("PORT"),
		AllowedOrigin:           v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		RedisAddr:               v.GetString("REDIS_ADDR"),
		RedisPassword:           v.GetString("REDIS_PASSWORD"),
		RedisDB:                 v.GetInt("REDIS_DB"),
		StoreID:                 strings.TrimSpace(v.GetString("DEFAULT_STORE_ID")),
		POSBaseURL:              strings.TrimRight(v.GetString("POS_BASE_URL"), "/"),
		POSToken:                strings.TrimSpace(v.GetString("POS_TOKEN")),
		POSTimeoutSeconds:       positiveOr(v.GetInt("POS_TIMEOUT_SECONDS"), 30),
		POSRateLimitPerMin:      positiveOr(v.GetInt("POS_RATE_LIMIT_PER_MIN"), 60),
		ShiftTimezone:           v.GetString("SHIFT_TIMEZONE"),
		ShiftStartHour:          hourOr(v.GetString("SHIFT_START_HOUR"), 18),
		ShiftEndHour:            hourOr(v.GetString("SHIFT_END_HOUR"), 3),
		CatalogPath:             strings.TrimSpace(v.GetString("CATALOG_PATH")),
		AnalysisCacheTTLSeconds: positiveOr(v.GetInt("ANALYSIS_CACHE_TTL_SECONDS"), 300),
		AuthSecret:              strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:   positiveOr(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 480),
		LogLevel:                strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) POSTimeout() time.Duration {
	return time.Duration(c.POSTimeoutSeconds) * time.Second
}

func (c Config) AnalysisCacheTTL() time.Duration {
	return time.Duration(c.AnalysisCacheTTLSeconds) * time.Second
}

// Location falls back to UTC when SHIFT_TIMEZONE is not a known zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ShiftTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func positiveOr(val int, fallback int) int {
	if val < 1 {
		return fallback
	}
	return val
}

// hourOr parses raw as an hour of day; anything else falls back.
func hourOr(raw string, fallback int) int {
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || val < 0 || val > 23 {
		return fallback
	}
	return val
}
