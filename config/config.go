package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Logging
	LogLevel    string
	LogEncoding string

	// Solana / swap venue
	SolanaRPCURL   string
	JupiterBaseURL string

	// Master wallet feed
	HeliusBaseURL string
	HeliusAPIKey  string

	// Signing wallet
	WalletSeedHex   string
	WalletPublicKey string

	// Binance spot (price oracle, optional exchange execution)
	BinanceAPIKey     string
	BinanceSecretKey  string
	BinanceUseTestnet bool
	ExchangeEnabled   bool

	// Price cache (optional; disabled when RedisAddr is empty)
	RedisAddr     string
	PriceCacheTTL time.Duration

	// Engine loops
	MonitorInterval   time.Duration
	DetectorCronSpec  string
	ReconcileCronSpec string

	// Execution defaults
	DefaultSlippageBps int

	// Detector tuning
	TxWindow        int
	FreshnessWindow time.Duration
	PendingTradeTTL time.Duration
	AutoExecCutoff  time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/dexpilot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogEncoding = getEnv("LOG_ENCODING", "json")

	// Solana / swap venue
	cfg.SolanaRPCURL = getEnv("SOLANA_RPC_URL", "")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, "SOLANA_RPC_URL must be set")
	}
	cfg.JupiterBaseURL = getEnv("JUPITER_BASE_URL", "")

	// Master wallet feed
	cfg.HeliusBaseURL = getEnv("HELIUS_BASE_URL", "")
	cfg.HeliusAPIKey = getEnv("HELIUS_API_KEY", "")
	if cfg.HeliusAPIKey == "" {
		errs = append(errs, "HELIUS_API_KEY must be set")
	}

	// Signing wallet
	cfg.WalletSeedHex = getEnv("WALLET_SEED_HEX", "")
	cfg.WalletPublicKey = getEnv("WALLET_PUBLIC_KEY", "")
	if cfg.WalletSeedHex == "" {
		errs = append(errs, "WALLET_SEED_HEX must be set")
	}
	if cfg.WalletPublicKey == "" {
		errs = append(errs, "WALLET_PUBLIC_KEY must be set")
	}

	// Binance spot
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.BinanceUseTestnet = getEnvAsBool("BINANCE_USE_TESTNET", true)
	cfg.ExchangeEnabled = getEnvAsBool("EXCHANGE_ENABLED", false)
	if cfg.BinanceAPIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.BinanceSecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Price cache
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.PriceCacheTTL = getEnvAsDuration("PRICE_CACHE_TTL", 3*time.Second)
	if cfg.PriceCacheTTL <= 0 {
		errs = append(errs, "PRICE_CACHE_TTL must be positive")
	}

	// Engine loops
	cfg.MonitorInterval = getEnvAsDuration("MONITOR_INTERVAL", 3*time.Second)
	if cfg.MonitorInterval <= 0 {
		errs = append(errs, "MONITOR_INTERVAL must be positive")
	}
	cfg.DetectorCronSpec = getEnv("DETECTOR_CRON_SPEC", "*/30 * * * * *")
	cfg.ReconcileCronSpec = getEnv("RECONCILE_CRON_SPEC", "0 */5 * * * *")

	// Execution defaults
	cfg.DefaultSlippageBps = getEnvAsInt("DEFAULT_SLIPPAGE_BPS", 100)
	if cfg.DefaultSlippageBps <= 0 {
		errs = append(errs, "DEFAULT_SLIPPAGE_BPS must be positive")
	}

	// Detector tuning
	cfg.TxWindow = getEnvAsInt("DETECTOR_TX_WINDOW", 20)
	if cfg.TxWindow <= 0 {
		errs = append(errs, "DETECTOR_TX_WINDOW must be positive")
	}
	cfg.FreshnessWindow = getEnvAsDuration("DETECTOR_FRESHNESS_WINDOW", 5*time.Minute)
	cfg.PendingTradeTTL = getEnvAsDuration("PENDING_TRADE_TTL", 5*time.Minute)
	cfg.AutoExecCutoff = getEnvAsDuration("AUTO_EXEC_CUTOFF", time.Minute)
	if cfg.FreshnessWindow <= 0 || cfg.PendingTradeTTL <= 0 || cfg.AutoExecCutoff <= 0 {
		errs = append(errs, "detector windows (freshness, pending TTL, auto-exec cutoff) must be positive")
	}
	if cfg.AutoExecCutoff >= cfg.PendingTradeTTL {
		errs = append(errs, "AUTO_EXEC_CUTOFF must be less than PENDING_TRADE_TTL")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
