package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Merlin controller daemon.
type Config struct {
	// Identity
	PrivateKey string // hex-encoded secp256k1 key, required
	Identity   string // e.g. merlin.swarmos.eth
	Pool       string // e.g. swarmpool.eth

	// Object store
	IPFSAPI string

	// Epoch timing
	EpochDurationSeconds int
	PollIntervalSeconds  int

	// Settlement shares
	ProviderShare   float64
	NetworkOpsShare float64

	// Retention
	SeenSetRetentionEpochs int

	// Ambient service ports
	MetricsPort int
	HealthPort  int

	// Optional YAML overlay, merged underneath environment variables
	ConfigFile string
}

// yamlOverlay mirrors the subset of Config fields an operator may want to
// set from a non-secret defaults file instead of the environment.
type yamlOverlay struct {
	Identity               string  `yaml:"identity"`
	Pool                   string  `yaml:"pool"`
	IPFSAPI                string  `yaml:"ipfs_api"`
	EpochDurationSeconds   int     `yaml:"epoch_duration_seconds"`
	PollIntervalSeconds    int     `yaml:"poll_interval_seconds"`
	ProviderShare          float64 `yaml:"provider_share"`
	NetworkOpsShare        float64 `yaml:"network_ops_share"`
	SeenSetRetentionEpochs int     `yaml:"seen_set_retention_epochs"`
	MetricsPort            int     `yaml:"metrics_port"`
	HealthPort             int     `yaml:"health_port"`
}

// Load reads configuration from environment variables, optionally overlaid
// with defaults from MERLIN_CONFIG_FILE. Environment variables always win.
//
// SECURITY: MERLIN_PRIVATE_KEY has no default and must be explicitly set.
// Call Validate() after Load() before starting the daemon.
func Load() (*Config, error) {
	cfg := &Config{
		Identity:               "merlin.swarmos.eth",
		Pool:                   "swarmpool.eth",
		IPFSAPI:                "http://localhost:5001",
		EpochDurationSeconds:   3600,
		PollIntervalSeconds:    10,
		ProviderShare:          0.75,
		NetworkOpsShare:        0.25,
		SeenSetRetentionEpochs: 0,
		MetricsPort:            9090,
		HealthPort:             8081,
	}

	if path := getEnv("MERLIN_CONFIG_FILE", ""); path != "" {
		if err := applyYAMLOverlay(cfg, path); err != nil {
			return nil, fmt.Errorf("loading MERLIN_CONFIG_FILE: %w", err)
		}
	}

	cfg.PrivateKey = getEnv("MERLIN_PRIVATE_KEY", "")
	cfg.Identity = getEnv("MERLIN_IDENTITY", cfg.Identity)
	cfg.Pool = getEnv("SWARM_POOL", cfg.Pool)
	cfg.IPFSAPI = getEnv("IPFS_API", cfg.IPFSAPI)
	cfg.EpochDurationSeconds = getEnvInt("EPOCH_DURATION_SECONDS", cfg.EpochDurationSeconds)
	cfg.PollIntervalSeconds = getEnvInt("POLL_INTERVAL_SECONDS", cfg.PollIntervalSeconds)
	cfg.ProviderShare = getEnvFloat("PROVIDER_SHARE", cfg.ProviderShare)
	cfg.NetworkOpsShare = getEnvFloat("NETWORK_OPS_SHARE", cfg.NetworkOpsShare)
	cfg.SeenSetRetentionEpochs = getEnvInt("SEEN_SET_RETENTION_EPOCHS", cfg.SeenSetRetentionEpochs)
	cfg.MetricsPort = getEnvInt("METRICS_PORT", cfg.MetricsPort)
	cfg.HealthPort = getEnvInt("HEALTH_PORT", cfg.HealthPort)

	return cfg, nil
}

func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if overlay.Identity != "" {
		cfg.Identity = overlay.Identity
	}
	if overlay.Pool != "" {
		cfg.Pool = overlay.Pool
	}
	if overlay.IPFSAPI != "" {
		cfg.IPFSAPI = overlay.IPFSAPI
	}
	if overlay.EpochDurationSeconds != 0 {
		cfg.EpochDurationSeconds = overlay.EpochDurationSeconds
	}
	if overlay.PollIntervalSeconds != 0 {
		cfg.PollIntervalSeconds = overlay.PollIntervalSeconds
	}
	if overlay.ProviderShare != 0 {
		cfg.ProviderShare = overlay.ProviderShare
	}
	if overlay.NetworkOpsShare != 0 {
		cfg.NetworkOpsShare = overlay.NetworkOpsShare
	}
	if overlay.SeenSetRetentionEpochs != 0 {
		cfg.SeenSetRetentionEpochs = overlay.SeenSetRetentionEpochs
	}
	if overlay.MetricsPort != 0 {
		cfg.MetricsPort = overlay.MetricsPort
	}
	if overlay.HealthPort != 0 {
		cfg.HealthPort = overlay.HealthPort
	}
	return nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.PrivateKey == "" {
		errs = append(errs, "MERLIN_PRIVATE_KEY is required but not set")
	}
	if c.IPFSAPI == "" {
		errs = append(errs, "IPFS_API is required but not set")
	}
	if c.EpochDurationSeconds <= 0 {
		errs = append(errs, "EPOCH_DURATION_SECONDS must be positive")
	}
	if c.PollIntervalSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	if c.ProviderShare < 0 || c.ProviderShare > 1 {
		errs = append(errs, "PROVIDER_SHARE must be between 0 and 1")
	}
	if c.NetworkOpsShare < 0 || c.NetworkOpsShare > 1 {
		errs = append(errs, "NETWORK_OPS_SHARE must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
