// Package config provides configuration management for the trading dashboard.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Backend BackendConfig
	Poll    PollConfig
	Server  ServerConfig
	Redis   RedisConfig
	Display DisplayConfig
	Logging LoggingConfig
}

// BackendConfig holds the trading backend connection settings
type BackendConfig struct {
	BaseURL         string
	TradesDays      int
	AnalysisDays    int
	PerformanceDays int
	RequestTimeout  time.Duration
	RateLimitRPS    float64 // 0 disables outbound pacing
	Timezone        string  // location of naive backend timestamps
}

// PollConfig holds scheduler, retry and breaker settings
type PollConfig struct {
	Interval        time.Duration
	FetchTimeout    time.Duration // defaults to Interval
	RetryAttempts   int           // total attempts per fetch, 1 disables retry
	RetryDelay      time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	Host         string
	RateLimitRPS float64
}

// RedisConfig holds Redis configuration for the snapshot broadcaster
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Channel  string
}

// DisplayConfig holds formatting settings for the projections
type DisplayConfig struct {
	Currency       string
	Timezone       string
	DateTimeLayout string
	RecentTrades   int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	interval := getEnvAsDuration("POLL_INTERVAL", 30*time.Second)

	config := &Config{
		Backend: BackendConfig{
			BaseURL:         strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:8001/api"), "/"),
			TradesDays:      getEnvAsInt("BACKEND_TRADES_DAYS", 7),
			AnalysisDays:    getEnvAsInt("BACKEND_ANALYSIS_DAYS", 7),
			PerformanceDays: getEnvAsInt("BACKEND_PERFORMANCE_DAYS", 30),
			RequestTimeout:  getEnvAsDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
			RateLimitRPS:    getEnvAsFloat("BACKEND_RATE_LIMIT_RPS", 0),
			Timezone:        getEnv("BACKEND_TIMEZONE", "UTC"),
		},
		Poll: PollConfig{
			Interval:        interval,
			FetchTimeout:    getEnvAsDuration("POLL_FETCH_TIMEOUT", interval),
			RetryAttempts:   getEnvAsInt("POLL_RETRY_ATTEMPTS", 1),
			RetryDelay:      getEnvAsDuration("POLL_RETRY_DELAY", 500*time.Millisecond),
			BreakerFailures: getEnvAsInt("BREAKER_MAX_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("BREAKER_COOLDOWN", 60*time.Second),
		},
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			RateLimitRPS: getEnvAsFloat("SERVER_RATE_LIMIT_RPS", 20),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "dashboard:snapshots"),
		},
		Display: DisplayConfig{
			Currency:       getEnv("DISPLAY_CURRENCY", "KRW"),
			Timezone:       getEnv("DISPLAY_TIMEZONE", "Asia/Seoul"),
			DateTimeLayout: getEnv("DISPLAY_DATETIME_LAYOUT", "2006. 1. 2. 15:04:05"),
			RecentTrades:   getEnvAsInt("DISPLAY_RECENT_TRADES", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be an absolute URL, got %q", c.Backend.BaseURL)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.FetchTimeout <= 0 {
		return fmt.Errorf("POLL_FETCH_TIMEOUT must be positive, got %s", c.Poll.FetchTimeout)
	}
	if c.Poll.RetryAttempts < 1 {
		return fmt.Errorf("POLL_RETRY_ATTEMPTS must be at least 1, got %d", c.Poll.RetryAttempts)
	}
	if c.Poll.BreakerFailures < 1 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be at least 1, got %d", c.Poll.BreakerFailures)
	}
	if c.Backend.RateLimitRPS < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT_RPS must not be negative")
	}
	if c.Display.RecentTrades < 0 {
		return fmt.Errorf("DISPLAY_RECENT_TRADES must not be negative")
	}
	if _, err := c.BackendLocation(); err != nil {
		return fmt.Errorf("invalid BACKEND_TIMEZONE: %w", err)
	}
	if _, err := c.DisplayLocation(); err != nil {
		return fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err)
	}
	return nil
}

// BackendLocation returns the location used for naive backend timestamps
func (c *Config) BackendLocation() (*time.Location, error) {
	return time.LoadLocation(c.Backend.Timezone)
}

// DisplayLocation returns the location dates are rendered in
func (c *Config) DisplayLocation() (*time.Location, error) {
	return time.LoadLocation(c.Display.Timezone)
}

// RedisAddr returns the host:port of the Redis server
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
