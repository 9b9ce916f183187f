package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	Network NetworkConfig `yaml:"network"`
	Status  StatusConfig  `yaml:"status"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SweeperConfig struct {
	RetryInitialSeconds int `yaml:"retry_initial_seconds"`
	RetryMaxSeconds     int `yaml:"retry_max_seconds"`
}

type NetworkConfig struct {
	DebounceMillis int `yaml:"debounce_millis"`
}

type StatusConfig struct {
	// Empty addr disables the local status HTTP surface.
	HTTPAddr string `yaml:"http_addr"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
