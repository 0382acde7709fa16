package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration. Every field has an
// environment fallback so the file can be omitted entirely.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Gateway struct {
		NATSURL         string `yaml:"nats_url"`
		DisableConsumer bool   `yaml:"disable_consumer"`
	} `yaml:"gateway"`
	Weather struct {
		DefaultCity string `yaml:"default_city"`
	} `yaml:"weather"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyConfigDefaults(&config)
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyConfigDefaults(&config)
	return &config, nil
}

func applyConfigDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if config.Gateway.NATSURL == "" {
		config.Gateway.NATSURL = getEnv("NATS_URL", "")
	}
	if config.Weather.DefaultCity == "" {
		config.Weather.DefaultCity = getEnv("WEATHER_CITY", "Paris")
	}
}
