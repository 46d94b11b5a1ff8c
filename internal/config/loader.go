package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, overlays environment
// variables, and validates the result. Unknown YAML keys are rejected so a
// typo in the file fails startup instead of silently using defaults. A
// missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			log.WithField("path", path).Info("configuration loaded")
		case os.IsNotExist(err):
			log.WithField("path", path).Debug("config file absent, using defaults")
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	mergeEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeEnv overlays AG2API_* environment variables onto the config.
// Environment always wins over file values.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("AG2API_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("AG2API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("AG2API_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("AG2API_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("AG2API_API_KEYS"); v != "" {
		cfg.APIKeys = splitList(v)
	}
	if v := os.Getenv("AG2API_ACCOUNTS_FILE"); v != "" {
		cfg.AccountsFile = v
	}
	if v := os.Getenv("AG2API_PROXY_URL"); v != "" {
		cfg.ProxyURL = v
	}
	if v := os.Getenv("AG2API_PROJECT_POLICY"); v != "" {
		cfg.ProjectPolicy = v
	}
	if v := os.Getenv("AG2API_DONE_MARKER"); v != "" {
		cfg.DoneMarker = v
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
