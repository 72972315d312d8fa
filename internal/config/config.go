package config

import (
	"encoding/json"
	"os"

	"github.com/kelseyhightower/envconfig"

	"github.com/Varma0717/tradingbot/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	applyDefaults(config)
	return config, nil
}

// LoadCredentials reads the exchange API keys from the environment.
// Keys may be empty in paper mode.
func LoadCredentials() (*models.Credentials, error) {
	creds := &models.Credentials{}
	if err := envconfig.Process("", creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.Mode == "" {
		cfg.Mode = models.ModePaper
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/engine-state"
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = 2
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryInitialDelayMs <= 0 {
		cfg.RetryInitialDelayMs = 500
	}
	if cfg.GatewayTimeoutSec <= 0 {
		cfg.GatewayTimeoutSec = 5
	}
	if cfg.WSBaseURL == "" {
		if cfg.IsTestnet {
			cfg.WSBaseURL = "wss://stream.testnet.binance.vision"
		} else {
			cfg.WSBaseURL = "wss://stream.binance.com:9443"
		}
	}
}
