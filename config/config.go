// Package config holds the plugin configuration.
//
// Values are resolved in order: the build default, optional .env files,
// then the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "EVENTSET_"

// Config is the plugin configuration
type Config struct {
	// Debug enables debug level logging of the plugin
	Debug bool `env:"DEBUG"`
}

// Defaults returns the configuration of the current build.
// Debug is on in builds tagged debug.
func Defaults() Config {
	return Config{Debug: defaultDebug}
}

// Load resolves the configuration. Each file in dotenv is loaded into the
// environment if it exists; variables already set win over file values.
// Without arguments ".env" is tried.
func Load(dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, file := range dotenv {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := Defaults()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
