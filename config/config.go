// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the service needs. Variables carry a PARLEY_
// prefix, e.g. PARLEY_ADDR or PARLEY_OPENROUTER_API_KEY.
type Config struct {
	Addr    string `envconfig:"ADDR" default:":8787"`
	DataDir string `envconfig:"DATA_DIR" default:"./data"`

	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`

	// Attribution headers OpenRouter uses for app rankings.
	HTTPReferer string `envconfig:"HTTP_REFERER" default:"http://localhost:8787"`
	AppTitle    string `envconfig:"APP_TITLE" default:"Parley"`

	ModelCacheTTL time.Duration `envconfig:"MODEL_CACHE_TTL" default:"1h"`
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("parley", &c); err != nil {
		return Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return c, nil
}
