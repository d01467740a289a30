package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/validation"
)

// NetworkConfig holds everything needed to verify transfers on one network.
type NetworkConfig struct {
	Network models.Network
	// DepositAddress receives subscription payments. Empty disables the network.
	DepositAddress   string
	ExplorerURL      string
	APIKey           string
	TokenContract    string
	TokenDecimals    int32
	MinConfirmations int64
}

// Enabled reports whether payments can be verified on the network.
func (n *NetworkConfig) Enabled() bool {
	return n != nil && n.DepositAddress != ""
}

type Config struct {
	Development bool
	// API configuration
	APIPort    int
	AdminToken string
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Redis is optional. Without it per-user locks are process local.
	RedisURL string
	// InstanceID identifies this process in the app_locks table.
	InstanceID string

	// Networks configuration
	Networks map[models.Network]*NetworkConfig

	// Subscription policy
	SubscriptionPeriodDays int
	GracePeriodDays        int
	// SubscriptionPrice is the lowest amount ever credited. Zero disables the floor.
	SubscriptionPrice decimal.Decimal

	// Verification configuration
	FreshnessWindow time.Duration
	ScanPageSize    int
	ExplorerTimeout time.Duration
	ExplorerRPS     float64

	// Sweep configuration
	SweepInterval    time.Duration
	SweepConcurrency int
	// SweepLockTTL is the lease on the sweep lock, renewed after every page.
	SweepLockTTL time.Duration

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   int64
}

type networkDefaults struct {
	prefix      string
	explorerURL string
	contract    string
	decimals    int
}

var defaults = map[models.Network]networkDefaults{
	models.NetworkTRC20: {"TRC20", "https://apilist.tronscanapi.com", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", 6},
	models.NetworkERC20: {"ERC20", "https://api.etherscan.io/api", "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6},
	models.NetworkBEP20: {"BEP20", "https://api.bscscan.com/api", "0x55d398326f99059fF775485246999027B3197955", 18},
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	hostname, _ := os.Hostname()
	defaultInstance := hostname + "-" + uuid.NewString()[:8]

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 6532),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "pactum"),
		RedisURL:         getEnv("REDIS_URL", ""),
		InstanceID:       getEnv("INSTANCE_ID", defaultInstance),

		Networks: make(map[models.Network]*NetworkConfig, len(models.Networks)),

		SubscriptionPeriodDays: getEnvAsInt("SUBSCRIPTION_PERIOD_DAYS", 30),
		GracePeriodDays:        getEnvAsInt("GRACE_PERIOD_DAYS", 7),
		SubscriptionPrice:      getEnvAsDecimal("SUBSCRIPTION_PRICE", decimal.Zero),

		FreshnessWindow: time.Duration(getEnvAsInt("FRESHNESS_WINDOW_MINUTES", 10)) * time.Minute,
		ScanPageSize:    getEnvAsInt("SCAN_PAGE_SIZE", 50),
		ExplorerTimeout: getEnvAsDuration("EXPLORER_TIMEOUT", 10*time.Second),
		ExplorerRPS:     getEnvAsFloat("EXPLORER_RPS", 4),

		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", time.Hour),
		SweepConcurrency: getEnvAsInt("SWEEP_CONCURRENCY", 4),
		SweepLockTTL:     getEnvAsDuration("SWEEP_LOCK_TTL", 10*time.Minute),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   int64(getEnvAsInt("TELEGRAM_CHAT_ID", 0)),
	}

	for _, network := range models.Networks {
		d := defaults[network]
		cfg.Networks[network] = &NetworkConfig{
			Network:          network,
			DepositAddress:   getEnv(d.prefix+"_DEPOSIT_ADDRESS", ""),
			ExplorerURL:      getEnv(d.prefix+"_EXPLORER_URL", d.explorerURL),
			APIKey:           getEnv(d.prefix+"_API_KEY", ""),
			TokenContract:    getEnv(d.prefix+"_TOKEN_CONTRACT", d.contract),
			TokenDecimals:    int32(getEnvAsInt(d.prefix+"_TOKEN_DECIMALS", d.decimals)),
			MinConfirmations: int64(getEnvAsInt(d.prefix+"_MIN_CONFIRMATIONS", 1)),
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Network returns the configuration of an enabled network, or nil.
func (c *Config) Network(n models.Network) *NetworkConfig {
	nc := c.Networks[n]
	if !nc.Enabled() {
		return nil
	}
	return nc
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.SubscriptionPeriodDays <= 0 {
		return fmt.Errorf("SUBSCRIPTION_PERIOD_DAYS must be positive")
	}

	if c.GracePeriodDays < 0 {
		return fmt.Errorf("GRACE_PERIOD_DAYS must not be negative")
	}

	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("FRESHNESS_WINDOW_MINUTES must be positive")
	}

	if c.ScanPageSize <= 0 || c.ScanPageSize > 200 {
		return fmt.Errorf("SCAN_PAGE_SIZE must be between 1 and 200")
	}

	if c.SubscriptionPrice.IsNegative() {
		return fmt.Errorf("SUBSCRIPTION_PRICE must not be negative")
	}

	if c.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be positive")
	}

	if c.SweepLockTTL <= 0 {
		return fmt.Errorf("SWEEP_LOCK_TTL must be positive")
	}

	enabled := 0
	for _, network := range models.Networks {
		nc := c.Networks[network]
		if !nc.Enabled() {
			continue
		}
		enabled++
		prefix := defaults[network].prefix
		if err := validateAddress(network, nc.DepositAddress); err != nil {
			return fmt.Errorf("invalid %s_DEPOSIT_ADDRESS: %w", prefix, err)
		}
		if err := validateAddress(network, nc.TokenContract); err != nil {
			return fmt.Errorf("invalid %s_TOKEN_CONTRACT: %w", prefix, err)
		}
		if nc.ExplorerURL == "" {
			return fmt.Errorf("%s_EXPLORER_URL is required", prefix)
		}
		if nc.TokenDecimals < 0 || nc.TokenDecimals > 36 {
			return fmt.Errorf("%s_TOKEN_DECIMALS is out of range", prefix)
		}
	}

	if enabled == 0 {
		return fmt.Errorf("at least one of TRC20_DEPOSIT_ADDRESS, ERC20_DEPOSIT_ADDRESS or BEP20_DEPOSIT_ADDRESS is required")
	}

	return nil
}

func validateAddress(network models.Network, addr string) error {
	if network.IsEVM() {
		return validation.ValidateEVMAddress(addr)
	}
	return validation.ValidateTronAddress(addr)
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDecimal(name string, defaultValue decimal.Decimal) decimal.Decimal {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := decimal.NewFromString(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
