package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Data sources the CLI and API can read from
const (
	SourceFMP      = "fmp"
	SourceSimFin   = "simfin"
	SourcePostgres = "postgres"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production, test

	// Database (optional store for fetched tables)
	Database DatabaseConfig

	// Redis (response cache and shared rate limit)
	Redis RedisConfig

	// Data sources
	DataSource string // fmp, simfin, postgres
	FMP        FMPConfig
	SimFin     SimFinConfig

	// Evaluation
	Workers      int
	StrategyFile string

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled bool
	URL     string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FMPConfig holds Financial Modeling Prep API configuration
type FMPConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	CacheTTL          time.Duration
}

// SimFinConfig holds the bulk CSV location
type SimFinConfig struct {
	DataDir string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Enabled:         getEnvAsBool("DB_ENABLED", false),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Data sources
		DataSource: getEnv("DATA_SOURCE", SourceSimFin),
		FMP: FMPConfig{
			APIKey:            getEnv("FMP_API_KEY", ""),
			BaseURL:           getEnv("FMP_BASE_URL", "https://financialmodelingprep.com/api/v3"),
			RequestsPerSecond: getEnvAsFloat("FMP_REQUESTS_PER_SECOND", 5),
			Burst:             getEnvAsInt("FMP_BURST", 5),
			CacheTTL:          getEnvAsDuration("FMP_CACHE_TTL", "168h"),
		},
		SimFin: SimFinConfig{
			DataDir: getEnv("SIMFIN_DATA_DIR", "data/simfin"),
		},

		// Evaluation
		Workers:      getEnvAsInt("WORKERS", 8),
		StrategyFile: getEnv("STRATEGY_FILE", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	// Database URL is required only when the store is on
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DB_ENABLED=true")
	}

	// Validate environment
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	switch c.DataSource {
	case SourceFMP:
		if c.FMP.APIKey == "" {
			return fmt.Errorf("FMP_API_KEY is required when DATA_SOURCE=fmp")
		}
	case SourceSimFin:
		if c.SimFin.DataDir == "" {
			return fmt.Errorf("SIMFIN_DATA_DIR is required when DATA_SOURCE=simfin")
		}
	case SourcePostgres:
		if !c.Database.Enabled {
			return fmt.Errorf("DB_ENABLED must be true when DATA_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be one of: fmp, simfin, postgres")
	}

	if c.FMP.RequestsPerSecond <= 0 {
		return fmt.Errorf("FMP_REQUESTS_PER_SECOND must be > 0")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
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
	valueStr := os.Getenv(key)
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
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
