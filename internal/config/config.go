package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Escalation struct {
		TimeoutMinutes  int `yaml:"timeout_minutes"`
		MaxContextBytes int `yaml:"max_context_bytes"`
	} `yaml:"escalation"`
	Sweeper struct {
		IntervalSeconds int64 `yaml:"interval_seconds"`
	} `yaml:"sweeper"`
	Knowledge struct {
		MatchThreshold  float64 `yaml:"match_threshold"`
		CacheTTLMinutes int     `yaml:"cache_ttl_minutes"`
		SeedFile        string  `yaml:"seed_file"`
	} `yaml:"knowledge"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Telegram struct {
		Enabled          bool   `yaml:"enabled"`
		BotToken         string `yaml:"bot_token"`
		SupervisorChatID int64  `yaml:"supervisor_chat_id"`
	} `yaml:"telegram"`
	Webhook struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"webhook"`
}

// RequestTimeout returns the escalation TTL as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Escalation.TimeoutMinutes) * time.Minute
}

// SweepInterval returns the sweeper cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalSeconds) * time.Second
}

// CacheTTL returns the knowledge lookup cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Knowledge.CacheTTLMinutes) * time.Minute
}

// LoadConfig reads configuration from the specified YAML file and fills in
// defaults for anything left unset.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Escalation.TimeoutMinutes <= 0 {
		c.Escalation.TimeoutMinutes = 10
	}
	if c.Escalation.MaxContextBytes <= 0 {
		c.Escalation.MaxContextBytes = 2000
	}
	if c.Sweeper.IntervalSeconds <= 0 {
		c.Sweeper.IntervalSeconds = 60
	}
	if c.Knowledge.MatchThreshold <= 0 {
		c.Knowledge.MatchThreshold = 0.4
	}
	if c.Knowledge.CacheTTLMinutes <= 0 {
		c.Knowledge.CacheTTLMinutes = 5
	}
}
