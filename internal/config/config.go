package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string `mapstructure:"mode"`
	Server      string `mapstructure:"server"`
	RegistryURL string `mapstructure:"registry_url"`
	Port        int    `mapstructure:"port"`
	DBPath      string `mapstructure:"db_path"`
	LogLevel    string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("server", "wss://janus1.januscaler.com/janus/ws")
	v.SetDefault("registry_url", "http://localhost:8080")
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "mountpoints.db")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
