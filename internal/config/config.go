// Package config handles application configuration from environment variables
// and the source catalog file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"newsbot/internal/model"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	SourcesPath      string
	PollInterval     time.Duration
	Sources          model.Catalog
}

// Load reads configuration from environment variables and loads the source
// catalog they point to.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	sourcesPath := os.Getenv("SOURCES_PATH")
	if sourcesPath == "" {
		sourcesPath = "./sources.yaml"
	}

	interval := 600 * time.Second
	if raw := strings.TrimSpace(os.Getenv("POLL_INTERVAL")); raw != "" {
		d, err := parseInterval(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", raw, err)
		}
		interval = d
	}

	sources, err := LoadSources(sourcesPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		TelegramBotToken: token,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		SourcesPath:      sourcesPath,
		PollInterval:     interval,
		Sources:          sources,
	}, nil
}

// parseInterval accepts a Go duration ("10m") or a plain number of seconds.
func parseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, err
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

type sourcesFile struct {
	Sources []model.Source `yaml:"sources"`
}

// LoadSources reads and validates the source catalog at path. Environment
// references like ${VAR} are expanded before parsing.
func LoadSources(path string) (model.Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	catalog := model.Catalog(f.Sources)
	if err := validate(catalog); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", path, err)
	}
	return catalog, nil
}

func validate(catalog model.Catalog) error {
	if len(catalog) == 0 {
		return errors.New("no sources defined")
	}

	names := make(map[string]bool, len(catalog))
	for i, src := range catalog {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("source #%d: name is required", i+1)
		}
		if names[src.Name] {
			return fmt.Errorf("source %q: duplicate name", src.Name)
		}
		names[src.Name] = true

		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("source %q: url is required", src.Name)
		}

		labels := make(map[string]bool, len(src.Categories))
		for _, c := range src.Categories {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("source %q: blank category", src.Name)
			}
			if labels[c] {
				return fmt.Errorf("source %q: duplicate category %q", src.Name, c)
			}
			labels[c] = true
		}
	}
	return nil
}
