// Package config loads the bridge validator's configuration from a TOML
// file with environment-variable overrides, grounded on the teacher's
// pkg/config.Load / getEnv* helper shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every setting the bridge validator needs to run. Fields
// map directly onto the source's config.py keys.
type Config struct {
	ForeignRPCURL     string        `toml:"foreign_rpc_url"`
	ForeignRPCTimeout time.Duration `toml:"foreign_rpc_timeout"`
	HomeRPCURL        string        `toml:"home_rpc_url"`
	HomeRPCTimeout    time.Duration `toml:"home_rpc_timeout"`

	ForeignChainTokenContractAddress  string `toml:"foreign_chain_token_contract_address"`
	ForeignBridgeContractAddress      string `toml:"foreign_bridge_contract_address"`
	HomeBridgeContractAddress         string `toml:"home_bridge_contract_address"`

	ForeignChainMaxReorgDepth uint64 `toml:"foreign_chain_max_reorg_depth"`
	HomeChainMaxReorgDepth    uint64 `toml:"home_chain_max_reorg_depth"`

	ForeignChainEventFetchStartBlockNumber uint64 `toml:"foreign_chain_event_fetch_start_block_number"`
	HomeChainEventFetchStartBlockNumber    uint64 `toml:"home_chain_event_fetch_start_block_number"`

	ForeignChainEventPollInterval time.Duration `toml:"foreign_chain_event_poll_interval"`
	HomeChainEventPollInterval   time.Duration `toml:"home_chain_event_poll_interval"`
	HomeChainStepDuration        time.Duration `toml:"home_chain_step_duration"`

	HomeChainGasPrice int64 `toml:"home_chain_gas_price"`

	MinimumValidatorBalance  int64         `toml:"minimum_validator_balance"`
	BalanceWarnPollInterval  time.Duration `toml:"balance_warn_poll_interval"`

	ValidatorPrivateKey string `toml:"validator_private_key"`

	ApplicationCleanupTimeout time.Duration `toml:"application_cleanup_timeout"`

	Webservice WebserviceConfig `toml:"webservice"`

	LogLevel string `toml:"log_level"`
}

// WebserviceConfig controls the optional debug HTTP endpoint.
type WebserviceConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// Default returns a Config populated with the daemon's documented
// defaults, overridden by Load from a file and then from the environment.
func Default() *Config {
	return &Config{
		ForeignRPCTimeout:             30 * time.Second,
		HomeRPCTimeout:                30 * time.Second,
		ForeignChainMaxReorgDepth:     20,
		HomeChainMaxReorgDepth:        20,
		ForeignChainEventPollInterval: 15 * time.Second,
		HomeChainEventPollInterval:    15 * time.Second,
		HomeChainStepDuration:         5 * time.Second,
		BalanceWarnPollInterval:       time.Minute,
		ApplicationCleanupTimeout:     30 * time.Second,
		LogLevel:                      "info",
		Webservice: WebserviceConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8640,
		},
	}
}

// Load reads a TOML config file (if path is non-empty) on top of
// Default(), then applies BRIDGE_* environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.ForeignRPCURL = getEnv("BRIDGE_FOREIGN_RPC_URL", cfg.ForeignRPCURL)
	cfg.HomeRPCURL = getEnv("BRIDGE_HOME_RPC_URL", cfg.HomeRPCURL)
	cfg.ForeignChainTokenContractAddress = getEnv("BRIDGE_FOREIGN_TOKEN_CONTRACT_ADDRESS", cfg.ForeignChainTokenContractAddress)
	cfg.ForeignBridgeContractAddress = getEnv("BRIDGE_FOREIGN_BRIDGE_CONTRACT_ADDRESS", cfg.ForeignBridgeContractAddress)
	cfg.HomeBridgeContractAddress = getEnv("BRIDGE_HOME_BRIDGE_CONTRACT_ADDRESS", cfg.HomeBridgeContractAddress)
	cfg.ValidatorPrivateKey = getEnv("BRIDGE_VALIDATOR_PRIVATE_KEY", cfg.ValidatorPrivateKey)
	cfg.LogLevel = getEnv("BRIDGE_LOG_LEVEL", cfg.LogLevel)

	cfg.ForeignChainMaxReorgDepth = getEnvUint64("BRIDGE_FOREIGN_MAX_REORG_DEPTH", cfg.ForeignChainMaxReorgDepth)
	cfg.HomeChainMaxReorgDepth = getEnvUint64("BRIDGE_HOME_MAX_REORG_DEPTH", cfg.HomeChainMaxReorgDepth)
	cfg.ForeignChainEventFetchStartBlockNumber = getEnvUint64("BRIDGE_FOREIGN_START_BLOCK", cfg.ForeignChainEventFetchStartBlockNumber)
	cfg.HomeChainEventFetchStartBlockNumber = getEnvUint64("BRIDGE_HOME_START_BLOCK", cfg.HomeChainEventFetchStartBlockNumber)

	cfg.HomeChainGasPrice = getEnvInt64("BRIDGE_HOME_GAS_PRICE", cfg.HomeChainGasPrice)
	cfg.MinimumValidatorBalance = getEnvInt64("BRIDGE_MINIMUM_VALIDATOR_BALANCE", cfg.MinimumValidatorBalance)

	cfg.ForeignChainEventPollInterval = getEnvDuration("BRIDGE_FOREIGN_POLL_INTERVAL", cfg.ForeignChainEventPollInterval)
	cfg.HomeChainEventPollInterval = getEnvDuration("BRIDGE_HOME_POLL_INTERVAL", cfg.HomeChainEventPollInterval)
	cfg.HomeChainStepDuration = getEnvDuration("BRIDGE_HOME_CHAIN_STEP_DURATION", cfg.HomeChainStepDuration)
	cfg.BalanceWarnPollInterval = getEnvDuration("BRIDGE_BALANCE_POLL_INTERVAL", cfg.BalanceWarnPollInterval)
	cfg.ApplicationCleanupTimeout = getEnvDuration("BRIDGE_CLEANUP_TIMEOUT", cfg.ApplicationCleanupTimeout)

	cfg.Webservice.Enabled = getEnvBool("BRIDGE_WEBSERVICE_ENABLED", cfg.Webservice.Enabled)
	cfg.Webservice.Host = getEnv("BRIDGE_WEBSERVICE_HOST", cfg.Webservice.Host)
	cfg.Webservice.Port = getEnvInt("BRIDGE_WEBSERVICE_PORT", cfg.Webservice.Port)
}

// Validate checks that all required configuration is present. It must
// be called after Load before the daemon starts any task.
func (c *Config) Validate() error {
	var problems []string

	if c.ForeignRPCURL == "" {
		problems = append(problems, "foreign_rpc_url is required")
	}
	if c.HomeRPCURL == "" {
		problems = append(problems, "home_rpc_url is required")
	}
	if c.ForeignChainTokenContractAddress == "" {
		problems = append(problems, "foreign_chain_token_contract_address is required")
	}
	if c.ForeignBridgeContractAddress == "" {
		problems = append(problems, "foreign_bridge_contract_address is required")
	}
	if c.HomeBridgeContractAddress == "" {
		problems = append(problems, "home_bridge_contract_address is required")
	}
	if c.ValidatorPrivateKey == "" {
		problems = append(problems, "validator_private_key is required")
	}
	if c.HomeChainGasPrice <= 0 {
		problems = append(problems, "home_chain_gas_price must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
