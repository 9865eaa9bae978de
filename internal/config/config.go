package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the overall configuration for the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	PriceAPI   PriceAPIConfig   `yaml:"priceAPI"`
	BalanceAPI BalanceAPIConfig `yaml:"balanceAPI"`
	Request    RequestConfig    `yaml:"request"`
	Storage    StorageConfig    `yaml:"storage"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// PriceAPIConfig holds the BTC/USD price service endpoints. PrimaryURL is
// tried first, SecondaryURL on failure; FallbackPrice is the terminal value
// when both are unreachable and nothing is cached yet.
type PriceAPIConfig struct {
	PrimaryURL      string  `yaml:"primaryURL"`
	SecondaryURL    string  `yaml:"secondaryURL"`
	FallbackPrice   float64 `yaml:"fallbackPrice"`
	CacheTTLMinutes int     `yaml:"cacheTTLMinutes"`
}

// BalanceAPIConfig holds the address balance service configuration.
type BalanceAPIConfig struct {
	BaseURL string `yaml:"baseURL"`
}

// RequestConfig holds timeout/retry behavior for outbound API requests.
type RequestConfig struct {
	TimeoutMs     int64 `yaml:"timeoutMs"`
	RetryAttempts int   `yaml:"retryAttempts"`
	RetryDelayMs  int64 `yaml:"retryDelayMs"`
	RateLimit     int   `yaml:"rateLimit"`
	BurstLimit    int   `yaml:"burstLimit"`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Dir     string `yaml:"dir"`     // file backend: one file per key under this dir
	Path    string `yaml:"path"`    // sqlite backend: database file path
}

// SchedulerConfig holds the auto-refresh intervals.
type SchedulerConfig struct {
	RefreshIntervalSeconds int `yaml:"refreshIntervalSeconds"`
	ClockIntervalSeconds   int `yaml:"clockIntervalSeconds"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

// LoadConfig loads configuration from a YAML file and applies defaults for
// anything left unset.
func LoadConfig(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	cfg.applyDefaults()

	if cfg.Storage.Backend != "file" && cfg.Storage.Backend != "sqlite" {
		return nil, fmt.Errorf("unknown storage backend %q (expected \"file\" or \"sqlite\")", cfg.Storage.Backend)
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
		logrus.Infof("Server.Port not set, defaulting to %s", cfg.Server.Port)
	}
	if cfg.PriceAPI.PrimaryURL == "" {
		cfg.PriceAPI.PrimaryURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"
		logrus.Infof("PriceAPI.PrimaryURL not set, defaulting to %s", cfg.PriceAPI.PrimaryURL)
	}
	if cfg.PriceAPI.SecondaryURL == "" {
		cfg.PriceAPI.SecondaryURL = "https://api.coindesk.com/v1/bpi/currentprice.json"
		logrus.Infof("PriceAPI.SecondaryURL not set, defaulting to %s", cfg.PriceAPI.SecondaryURL)
	}
	if cfg.PriceAPI.FallbackPrice == 0 {
		cfg.PriceAPI.FallbackPrice = 45000
		logrus.Infof("PriceAPI.FallbackPrice not set, defaulting to %.0f", cfg.PriceAPI.FallbackPrice)
	}
	if cfg.PriceAPI.CacheTTLMinutes == 0 {
		cfg.PriceAPI.CacheTTLMinutes = 60
		logrus.Infof("PriceAPI.CacheTTLMinutes not set, defaulting to %d minutes", cfg.PriceAPI.CacheTTLMinutes)
	}
	if cfg.BalanceAPI.BaseURL == "" {
		cfg.BalanceAPI.BaseURL = "https://blockchain.info/q/addressbalance"
		logrus.Infof("BalanceAPI.BaseURL not set, defaulting to %s", cfg.BalanceAPI.BaseURL)
	}
	if cfg.Request.TimeoutMs == 0 {
		cfg.Request.TimeoutMs = 10000
		logrus.Infof("Request.TimeoutMs not set, defaulting to %d ms", cfg.Request.TimeoutMs)
	}
	if cfg.Request.RetryAttempts == 0 {
		cfg.Request.RetryAttempts = 3
		logrus.Infof("Request.RetryAttempts not set, defaulting to %d", cfg.Request.RetryAttempts)
	}
	if cfg.Request.RetryDelayMs == 0 {
		cfg.Request.RetryDelayMs = 1000
		logrus.Infof("Request.RetryDelayMs not set, defaulting to %d ms", cfg.Request.RetryDelayMs)
	}
	if cfg.Request.RateLimit == 0 {
		cfg.Request.RateLimit = 10
		logrus.Infof("Request.RateLimit not set, defaulting to %d rps", cfg.Request.RateLimit)
	}
	if cfg.Request.BurstLimit == 0 {
		cfg.Request.BurstLimit = 5
		logrus.Infof("Request.BurstLimit not set, defaulting to %d", cfg.Request.BurstLimit)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
		logrus.Infof("Storage.Backend not set, defaulting to %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
		logrus.Infof("Storage.Dir not set, defaulting to %q", cfg.Storage.Dir)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/portfolio.db"
		logrus.Infof("Storage.Path not set, defaulting to %q", cfg.Storage.Path)
	}
	if cfg.Scheduler.RefreshIntervalSeconds == 0 {
		cfg.Scheduler.RefreshIntervalSeconds = 60
		logrus.Infof("Scheduler.RefreshIntervalSeconds not set, defaulting to %d", cfg.Scheduler.RefreshIntervalSeconds)
	}
	if cfg.Scheduler.ClockIntervalSeconds == 0 {
		cfg.Scheduler.ClockIntervalSeconds = 10
		logrus.Infof("Scheduler.ClockIntervalSeconds not set, defaulting to %d", cfg.Scheduler.ClockIntervalSeconds)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
