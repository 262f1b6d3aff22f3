package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Rates    RatesConfig
	Fernet   FernetConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// RatesConfig holds exchange-rate provider configuration.
// APIKey may be empty; the keyed provider is only registered when a key is
// available, either here or encrypted in the preferences table.
type RatesConfig struct {
	APIKey     string
	APIBaseURL string
	BTCBaseURL string
}

// FernetConfig holds the key used to encrypt provider tokens at rest.
type FernetConfig struct {
	Key string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/budget.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: strings.Split(
				getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost"), ","),
		},
		Rates: RatesConfig{
			APIKey:     getEnv("RATE_API_KEY", ""),
			APIBaseURL: getEnv("RATE_API_BASE_URL", "https://openexchangerates.org/api"),
			BTCBaseURL: getEnv("RATE_BTC_BASE_URL", "https://indexes.bitcoin.info/api"),
		},
		Fernet: FernetConfig{
			Key: getEnv("FERNET_KEY", ""),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
