// Package config reads process configuration from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultProgramID is the marketplace program id used when PROGRAM_ID is unset.
const DefaultProgramID = "GhsHMdEPyjZGGzRsjgTtvhQx5XUwV8mWnKDKeJZtaKc4"

type Config struct {
	ProgramID       string
	MarketplaceName string
	Debug           bool
	LogFile         string

	UseMemory     bool
	PostgresDSN   string
	ClickhouseDSN string

	HTTPAddr    string
	MetricsAddr string
	DevFaucet   bool

	Solana SolanaConfig
}

type SolanaConfig struct {
	RPCEndpoint string
	WSEndpoint  string
	Timeout     int // seconds
	MaxRetries  int
}

// Load reads .env files (missing files are ignored) and returns the config.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return Get(), nil
}

// Get returns the config from the current environment.
func Get() *Config {
	return &Config{
		ProgramID:       getString("PROGRAM_ID", DefaultProgramID),
		MarketplaceName: getString("MARKETPLACE_NAME", ""),
		Debug:           getBool("DEBUG", false),
		LogFile:         getString("LOG_FILE", ""),
		UseMemory:       getBool("USE_MEMORY", false),
		PostgresDSN:     getString("POSTGRES_DSN", ""),
		ClickhouseDSN:   getString("CLICKHOUSE_DSN", ""),
		HTTPAddr:        getString("HTTP_ADDR", ":8080"),
		MetricsAddr:     getString("METRICS_ADDR", ":9090"),
		DevFaucet:       getBool("DEV_FAUCET", false),
		Solana: SolanaConfig{
			RPCEndpoint: getString("SOLANA_RPC_ENDPOINT", ""),
			WSEndpoint:  getString("SOLANA_WS_ENDPOINT", ""),
			Timeout:     getInt("SOLANA_TIMEOUT", 30),
			MaxRetries:  getInt("SOLANA_MAX_RETRIES", 3),
		},
	}
}

func getString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getInt(key string, defaultValue int) int {
	val, err := strconv.Atoi(strings.TrimSpace(getString(key, "")))
	if err != nil {
		return defaultValue
	}
	return val
}

func getBool(key string, defaultValue bool) bool {
	valStr := getString(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}

	return defaultValue
}
