/*
config.go - Server configuration

PURPOSE:
  Collects everything cmd/server needs to start: HTTP port, SQLite path,
  store call timeout, watcher poll interval, CORS origins, statutory rates.

PRECEDENCE (later wins):
  1. Defaults()
  2. YAML file passed to Load (optional)
  3. .env file in the working directory (optional)
  4. Process environment
  5. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  WORKFORCE_PORT            HTTP port
  WORKFORCE_DB              SQLite path, ":memory:" allowed
  WORKFORCE_STORE_TIMEOUT   per-call store timeout, Go duration ("5s")
  WORKFORCE_WATCH_INTERVAL  watcher poll interval, Go duration
  WORKFORCE_CORS_ORIGINS    comma-separated origins
  WORKFORCE_PF_RATE         decimal string, e.g. "0.12"
  WORKFORCE_ESI_RATE        decimal string, e.g. "0.0325"
  WORKFORCE_ESI_THRESHOLD   decimal string, e.g. "21000"

EXAMPLE FILE:
  port: 8080
  db: ./data/workforce.db
  storeTimeout: 5s
  watchInterval: 2s
  corsOrigins: ["http://localhost:5173"]
  rates:
    pf: "0.12"
    esi: "0.0325"
    esiThreshold: "21000"
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/workforce-engine/payroll"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int           `yaml:"port"`
	DBPath        string        `yaml:"db"`
	StoreTimeout  time.Duration `yaml:"storeTimeout"`
	WatchInterval time.Duration `yaml:"watchInterval"`
	CORSOrigins   []string      `yaml:"corsOrigins"`
	Rates         RatesConfig   `yaml:"rates"`
}

// RatesConfig keeps rates as strings so no precision is lost before they
// reach decimal.
type RatesConfig struct {
	PF           string `yaml:"pf"`
	ESI          string `yaml:"esi"`
	ESIThreshold string `yaml:"esiThreshold"`
}

func Defaults() Config {
	return Config{
		Port:          8080,
		DBPath:        "workforce.db",
		StoreTimeout:  5 * time.Second,
		WatchInterval: time.Second,
		CORSOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		Rates: RatesConfig{
			PF:           "0.12",
			ESI:          "0.0325",
			ESIThreshold: "21000",
		},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	return load(path, ".env", os.LookupEnv)
}

func load(path, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	if v, ok := env("WORKFORCE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WORKFORCE_PORT: %w", err)
		}
		c.Port = port
	}
	if v, ok := env("WORKFORCE_DB"); ok {
		c.DBPath = v
	}
	if v, ok := env("WORKFORCE_STORE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WORKFORCE_STORE_TIMEOUT: %w", err)
		}
		c.StoreTimeout = d
	}
	if v, ok := env("WORKFORCE_WATCH_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WORKFORCE_WATCH_INTERVAL: %w", err)
		}
		c.WatchInterval = d
	}
	if v, ok := env("WORKFORCE_CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := env("WORKFORCE_PF_RATE"); ok {
		c.Rates.PF = v
	}
	if v, ok := env("WORKFORCE_ESI_RATE"); ok {
		c.Rates.ESI = v
	}
	if v, ok := env("WORKFORCE_ESI_THRESHOLD"); ok {
		c.Rates.ESIThreshold = v
	}
	return nil
}

// Validate checks ranges and that the rates parse.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db path must be set")
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("store timeout %v is negative", c.StoreTimeout)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("watch interval %v must be positive", c.WatchInterval)
	}
	if _, err := c.PayrollRates(); err != nil {
		return fmt.Errorf("rates: %w", err)
	}
	return nil
}

// PayrollRates converts the configured strings to payroll.Rates.
func (c Config) PayrollRates() (payroll.Rates, error) {
	return payroll.ParseRates(c.Rates.PF, c.Rates.ESI, c.Rates.ESIThreshold)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
