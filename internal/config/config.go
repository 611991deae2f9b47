package config

import (
	"os"

	"github.com/accelmark/opcheck/internal/compare"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Harness struct {
		Listen  string `yaml:"listen"`
		Workers int    `yaml:"workers"`
	} `yaml:"harness"`
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Device struct {
		Backend string `yaml:"backend"`
	} `yaml:"device"`
	Cases struct {
		Dir string `yaml:"dir"`
	} `yaml:"cases"`
	Tolerance compare.Policy `yaml:"tolerance"`
	Attest    struct {
		KeyfilePath string `yaml:"keyfilePath"`
	} `yaml:"attest"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.Harness.Listen = ":8080"
	cfg.Harness.Workers = 4
	cfg.Logger.Verbosity = "info"
	cfg.Device.Backend = "sim"
	cfg.Cases.Dir = "cases"
	cfg.Tolerance = compare.DefaultPolicy
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
