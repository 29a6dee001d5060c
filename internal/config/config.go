// Package config loads the layer configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProxyPolicy controls whether the relay may or must be used.
type ProxyPolicy string

const (
	// ProxyAuto probes the direct store endpoint once and falls back to
	// the relay when the probe fails.
	ProxyAuto ProxyPolicy = "auto"
	// ProxyForce skips the probe and always routes through the relay.
	ProxyForce ProxyPolicy = "force"
	// ProxyOff disables the relay entirely.
	ProxyOff ProxyPolicy = "off"
)

// Config collects every recognized setting with its documented default.
type Config struct {
	StoreURL string // direct backing-store base URL
	ProxyURL string // relay base URL
	Proxy    ProxyPolicy

	ProbeTimeout time.Duration // connectivity probe deadline
	PollInterval time.Duration // proxy-mode subscription poll interval

	StateDir        string // durable local state (rate limiter files)
	MaxNestingLevel int    // depth at which new replies stop being offered

	Env      string // dev|prod
	LogLevel string
}

type getenv func(string) string

// Load reads .env (if present) and the environment, applying defaults.
// It does not log so as not to depend on the logger.
func Load(get getenv) (*Config, error) {
	_ = godotenv.Load(".env")

	def := func(v, d string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return d
		}
		return v
	}

	cfg := &Config{
		StoreURL: strings.TrimRight(get("STORE_URL"), "/"),
		ProxyURL: strings.TrimRight(get("PROXY_URL"), "/"),
		Proxy:    ProxyPolicy(strings.ToLower(def(get("PROXY_MODE"), string(ProxyAuto)))),

		StateDir: def(get("STATE_DIR"), defaultStateDir()),

		Env:      strings.ToLower(def(get("ENV"), "prod")),
		LogLevel: strings.ToLower(def(get("LOGLEVEL"), "info")),
	}

	var err error
	if cfg.ProbeTimeout, err = time.ParseDuration(def(get("PROBE_TIMEOUT"), "5s")); err != nil {
		return nil, fmt.Errorf("PROBE_TIMEOUT: %w", err)
	}
	if cfg.PollInterval, err = time.ParseDuration(def(get("POLL_INTERVAL"), "10s")); err != nil {
		return nil, fmt.Errorf("POLL_INTERVAL: %w", err)
	}
	if cfg.MaxNestingLevel, err = strconv.Atoi(def(get("MAX_NESTING_LEVEL"), "3")); err != nil {
		return nil, fmt.Errorf("MAX_NESTING_LEVEL: %w", err)
	}

	return cfg, nil
}

func defaultStateDir() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, "blogstore")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "blogstore")
}

// Validate returns warnings plus a fatal error when the config cannot work.
func (c *Config) Validate() (warnings []string, err error) {
	switch c.Proxy {
	case ProxyAuto, ProxyForce, ProxyOff:
	default:
		return nil, fmt.Errorf("unknown PROXY_MODE %q (want auto|force|off)", c.Proxy)
	}

	if c.StoreURL == "" && c.Proxy != ProxyForce {
		return nil, fmt.Errorf("STORE_URL is required unless PROXY_MODE=force")
	}
	if c.ProxyURL == "" && c.Proxy != ProxyOff {
		warnings = append(warnings, "PROXY_URL is empty, proxy fallback unavailable")
	}
	if c.MaxNestingLevel < 1 {
		return nil, fmt.Errorf("MAX_NESTING_LEVEL must be >= 1, got %d", c.MaxNestingLevel)
	}
	if c.ProbeTimeout <= 0 {
		warnings = append(warnings, "PROBE_TIMEOUT <= 0, probe will fail immediately")
	}
	return warnings, nil
}
