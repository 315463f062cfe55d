package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	PawChain   PawChainConfig   `mapstructure:"pawchain"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Blacklist  BlacklistConfig  `mapstructure:"blacklist"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// PawChainConfig contains PAW node client settings
type PawChainConfig struct {
	RPCURL        string        `mapstructure:"rpc_url"`
	WSUrl         string        `mapstructure:"ws_url"`
	WalletSeed    string        `mapstructure:"wallet_seed"`
	HotWallet     string        `mapstructure:"hot_wallet"`
	ColdWallet    string        `mapstructure:"cold_wallet"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// EthereumConfig contains EVM chain client settings
type EthereumConfig struct {
	RPCURL             string        `mapstructure:"rpc_url"`
	WSUrl              string        `mapstructure:"ws_url"`
	ChainID            int64         `mapstructure:"chain_id"`
	WrappedToken       string        `mapstructure:"wrapped_token"`
	SignerPrivateKey   string        `mapstructure:"signer_private_key"`
	ConfirmationBlocks uint64        `mapstructure:"confirmation_blocks"`
	ScanBatchSize      uint64        `mapstructure:"scan_batch_size"`
	StartBlock         uint64        `mapstructure:"start_block"`
	PollingInterval    time.Duration `mapstructure:"polling_interval"`
}

// BridgeConfig contains bridge operation settings
type BridgeConfig struct {
	HotWalletMinimum string        `mapstructure:"hot_wallet_minimum"`
	HotColdRatio     int           `mapstructure:"hot_cold_ratio"`
	ClaimTTL         time.Duration `mapstructure:"claim_ttl"`
}

// QueueConfig contains job queue settings
type QueueConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// BlacklistConfig contains blacklist oracle settings
type BlacklistConfig struct {
	URL      string        `mapstructure:"url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("BRIDGE")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 3050)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")

	// PAW node defaults
	viper.SetDefault("pawchain.sweep_interval", "60s")

	// Ethereum defaults
	viper.SetDefault("ethereum.confirmation_blocks", 5)
	viper.SetDefault("ethereum.scan_batch_size", 1000)
	viper.SetDefault("ethereum.start_block", 0)
	viper.SetDefault("ethereum.polling_interval", "15s")

	// Bridge defaults
	viper.SetDefault("bridge.hot_wallet_minimum", "10")
	viper.SetDefault("bridge.hot_cold_ratio", 20)
	viper.SetDefault("bridge.claim_ttl", "300s")

	// Queue defaults
	viper.SetDefault("queue.attempts", 3)
	viper.SetDefault("queue.job_timeout", "30s")
	viper.SetDefault("queue.backoff_base", "1s")
	viper.SetDefault("queue.poll_interval", "500ms")

	// Blacklist defaults
	viper.SetDefault("blacklist.cache_ttl", "1h")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.PawChain.WSUrl == "" {
		return fmt.Errorf("pawchain.ws_url is required")
	}
	if config.PawChain.HotWallet == "" {
		return fmt.Errorf("pawchain.hot_wallet is required")
	}
	if config.PawChain.ColdWallet == "" {
		return fmt.Errorf("pawchain.cold_wallet is required")
	}
	if config.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if config.Ethereum.WrappedToken == "" {
		return fmt.Errorf("ethereum.wrapped_token is required")
	}
	if config.Bridge.HotColdRatio < 0 || config.Bridge.HotColdRatio > 100 {
		return fmt.Errorf("bridge.hot_cold_ratio must be between 0 and 100")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
