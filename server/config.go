package server

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the flag server configuration, read from FLAGSERVER_* variables.
type Config struct {
	Addr    string        `envconfig:"ADDR" default:":8080"`
	File    string        `envconfig:"FILE" required:"true"`
	APIKey  string        `envconfig:"API_KEY"`
	Refresh time.Duration `envconfig:"REFRESH" default:"30s"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("flagserver", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
