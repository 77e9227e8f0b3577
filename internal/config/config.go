package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App struct {
		Env string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		Host string
		Port string
	}

	Engine struct {
		PageSize          int           // candidates fetched per feed page
		MinScore          int           // percentage threshold below which candidates are dropped
		DebounceWindow    time.Duration // coalescing window for unread recomputation
		ReconcileInterval time.Duration // periodic unread reconciliation read
		RingSize          int           // retained notification window
		SeenSetSize       int           // dedupe window for change-stream records
		WriteRetries      int           // durable swipe write attempts before marking failed
	}
}

func New() *Config {
	cfg := &Config{}

	cfg.App.Env = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "engine_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "nestmatch")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis (counter cache + change-data channels)
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}

	// HTTP
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")

	// Engine tunables
	cfg.Engine.PageSize = getEnvInt("ENGINE_PAGE_SIZE", 10)
	cfg.Engine.MinScore = getEnvInt("ENGINE_MIN_SCORE", 10)
	cfg.Engine.DebounceWindow = time.Duration(getEnvInt("ENGINE_DEBOUNCE_MS", 500)) * time.Millisecond
	cfg.Engine.ReconcileInterval = time.Duration(getEnvInt("ENGINE_RECONCILE_SECONDS", 60)) * time.Second
	cfg.Engine.RingSize = getEnvInt("ENGINE_RING_SIZE", 50)
	cfg.Engine.SeenSetSize = getEnvInt("ENGINE_SEEN_SET_SIZE", 500)
	cfg.Engine.WriteRetries = getEnvInt("ENGINE_WRITE_RETRIES", 3)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
