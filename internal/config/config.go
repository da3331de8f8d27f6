package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Monitor struct {
		IntervalSeconds  int `yaml:"interval_seconds"`
		QuoteConcurrency int `yaml:"quote_concurrency"`
	} `yaml:"monitor"`
	Quotes struct {
		YahooEndpoint   string `yaml:"yahoo_endpoint"`
		FinnhubEndpoint string `yaml:"finnhub_endpoint"`
		FinnhubAPIKey   string `yaml:"finnhub_api_key"`
	} `yaml:"quotes"`
	Simulation struct {
		StartingBalance string `yaml:"starting_balance"`
	} `yaml:"simulation"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "stocksim.db"
	}
	if c.Monitor.IntervalSeconds == 0 {
		c.Monitor.IntervalSeconds = 60
	}
	if c.Monitor.QuoteConcurrency == 0 {
		c.Monitor.QuoteConcurrency = 8
	}
	if c.Quotes.YahooEndpoint == "" {
		c.Quotes.YahooEndpoint = "https://query2.finance.yahoo.com"
	}
	if c.Quotes.FinnhubEndpoint == "" {
		c.Quotes.FinnhubEndpoint = "https://finnhub.io"
	}
	if c.Simulation.StartingBalance == "" {
		c.Simulation.StartingBalance = "10000"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
