// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type          string // "postgres", "mongo" or "memory"
	URI           string
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MongoDatabase string
}

// AuthConfig holds identity token settings
type AuthConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// NATSConfig enables cross-instance fan-out of realtime events when URL is set
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// LogConfig controls the process logger
type LogConfig struct {
	Level string
	File  string
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Auth           *AuthConfig
	NATS           *NATSConfig
	Log            *LogConfig
	AllowedOrigins []string
	Debug          bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
		RequestTimeout: 5 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:          "postgres",
		Port:          5432,
		SSLMode:       "require",
		MongoDatabase: "heartline",
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/server
		filepath.Join(os.Getenv("GOPATH"), "src/heartline/.env"),
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		_ = godotenv.Load()
	}

	serverConfig := DefaultConfig()

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			serverConfig.Port = port
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			serverConfig.RequestTimeout = d
		}
	}

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server:   serverConfig,
		Database: dbConfig,
		Auth: &AuthConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getEnvOrDefault("JWT_ISSUER", "heartline-api"),
			TTL:    24 * time.Hour,
		},
		NATS: &NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", "heartline.rooms"),
		},
		Log: &LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		AllowedOrigins: []string{"*"}, // Default to allow all origins
		Debug:          false,
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
	}

	if config.Auth.Secret == "" {
		if !config.Debug {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required unless DEBUG=true")
		}
		config.Auth.Secret = "heartline_debug_secret"
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	dbConfig := DefaultDatabaseConfig()

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = strings.ToLower(dbType)
	}

	switch dbConfig.Type {
	case "memory":
		return dbConfig, nil

	case "mongo", "mongodb":
		dbConfig.Type = "mongo"
		dbConfig.URI = os.Getenv("MONGO_URI")
		if dbConfig.URI == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable is required when DB_TYPE is mongo")
		}
		dbConfig.MongoDatabase = getEnvOrDefault("MONGO_DATABASE", dbConfig.MongoDatabase)
		return dbConfig, nil

	case "postgres":
		// Prioritize DATABASE_URL if provided
		if uri := os.Getenv("DATABASE_URL"); uri != "" {
			dbConfig.URI = uri
			dbConfig.SSLMode = getSSLModeFromURI(uri)
			return dbConfig, nil
		}

		dbConfig.Host = getEnvOrDefault("DB_HOST", "localhost")

		if portStr := os.Getenv("DB_PORT"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				dbConfig.Port = port
			}
		}

		dbConfig.User = os.Getenv("DB_USER")
		if dbConfig.User == "" {
			return nil, fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}

		dbConfig.Password = os.Getenv("DB_PASSWORD")
		if dbConfig.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}

		dbConfig.Name = getEnvOrDefault("DB_NAME", "postgres")
		dbConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "require")

		dbConfig.URI = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			dbConfig.User,
			dbConfig.Password,
			dbConfig.Host,
			dbConfig.Port,
			dbConfig.Name,
			dbConfig.SSLMode,
		)
		return dbConfig, nil

	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q (expected postgres, mongo or memory)", dbConfig.Type)
	}
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to extract sslmode from a DSN, defaults to "require"
func getSSLModeFromURI(uri string) string {
	if strings.Contains(uri, "sslmode=") {
		parts := strings.Split(uri, "?")
		if len(parts) > 1 {
			queryParams := strings.Split(parts[1], "&")
			for _, param := range queryParams {
				kv := strings.SplitN(param, "=", 2)
				if len(kv) == 2 && kv[0] == "sslmode" {
					return kv[1]
				}
			}
		}
	}
	return "require"
}
