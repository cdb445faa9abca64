// Package config provides configuration management for the settlement engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/launchpad-settlement/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Chain      ChainConfig
	Settlement SettlementConfig
	Worker     WorkerConfig
	Logging    LoggingConfig
}

// ServerConfig holds the dashboard API server configuration
type ServerConfig struct {
	Host          string
	Port          string
	RatePerSecond int
	RateBurst     int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	StatusTTL      time.Duration
}

// ClickHouseConfig holds the analytics archive configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	Enabled  bool
}

// ChainConfig holds on-chain collaborator configuration
type ChainConfig struct {
	ID           types.ChainID
	RPCPrimary   string
	RPCSecondary string
	SignerKey    string // hex private key of the settlement signer

	EscrowStore        string // contract addresses, hex
	LiquidityVenue     string
	LockVault          string
	VestingDistributor string
	TreasuryVault      string
	ReferralPoolVault  string
	StakingVault       string
	BurnSink           string
}

// SettlementConfig holds the default fee policy and finalizer identity
type SettlementConfig struct {
	Finalizer string // authorized finalizer address
	FeePolicy types.FeePolicy
}

// WorkerConfig holds lifecycle worker configuration
type WorkerConfig struct {
	PollInterval    time.Duration
	FinalizeRetries int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			Port:          getEnv("SERVER_PORT", "8080"),
			RatePerSecond: getEnvAsInt("SERVER_RATE_PER_SECOND", 50),
			RateBurst:     getEnvAsInt("SERVER_RATE_BURST", 100),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "settlement"),
				User:           getEnv("POSTGRES_USER", "settlement"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 25),
				StatusTTL:      getEnvAsDuration("REDIS_STATUS_TTL", 15*time.Second),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "settlement"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
			},
		},
		Chain: ChainConfig{
			ID:                 types.ChainID(getEnv("CHAIN_ID", string(types.ChainEthereum))),
			RPCPrimary:         getEnv("CHAIN_RPC_PRIMARY", ""),
			RPCSecondary:       getEnv("CHAIN_RPC_SECONDARY", ""),
			SignerKey:          getEnv("CHAIN_SIGNER_KEY", ""),
			EscrowStore:        getEnv("ESCROW_STORE_ADDRESS", ""),
			LiquidityVenue:     getEnv("LIQUIDITY_VENUE_ADDRESS", ""),
			LockVault:          getEnv("LOCK_VAULT_ADDRESS", ""),
			VestingDistributor: getEnv("VESTING_DISTRIBUTOR_ADDRESS", ""),
			TreasuryVault:      getEnv("TREASURY_VAULT_ADDRESS", ""),
			ReferralPoolVault:  getEnv("REFERRAL_POOL_VAULT_ADDRESS", ""),
			StakingVault:       getEnv("STAKING_VAULT_ADDRESS", ""),
			BurnSink:           getEnv("BURN_SINK_ADDRESS", "0x000000000000000000000000000000000000dEaD"),
		},
		Settlement: SettlementConfig{
			Finalizer: getEnv("FINALIZER_ADDRESS", ""),
			FeePolicy: types.FeePolicy{
				TotalBps:    getEnvAsUint("FEE_TOTAL_BPS", 500),
				TreasuryBps: getEnvAsUint("FEE_TREASURY_BPS", 250),
				ReferralBps: getEnvAsUint("FEE_REFERRAL_BPS", 200),
				StakingBps:  getEnvAsUint("FEE_STAKING_BPS", 50),
			},
		},
		Worker: WorkerConfig{
			PollInterval:    getEnvAsDuration("WORKER_POLL_INTERVAL", 15*time.Second),
			FinalizeRetries: getEnvAsInt("WORKER_FINALIZE_RETRIES", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Settlement.FeePolicy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee policy: %w", err)
	}

	return cfg, nil
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

// getEnvAsUint gets an environment variable as a uint64 with a default value
func getEnvAsUint(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
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
