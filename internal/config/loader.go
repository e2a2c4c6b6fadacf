package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "EMOTION_"

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. a .env file in the working directory, if present
//  3. a YAML file named by EMOTION_CONFIG
//  4. EMOTION_* environment variables
//
// Legacy DB_* variables are used to build the Postgres URL when none is given.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrLoadConfig, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// EMOTION_MODEL_PATH -> model_path
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	// Labels may arrive as a YAML list or a comma separated env value.
	var labels []string
	if k.Exists("labels") {
		labels = parseLabels(k.Get("labels"))
		k.Delete("labels")
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if labels != nil {
		cfg.Labels = labels
	}

	if cfg.LabelsPath != "" {
		labels, err := LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
		cfg.Labels = labels
	}

	if strings.EqualFold(cfg.DBDriver, "postgres") && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = legacyDatabaseURL()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadLabels reads one label per line; blank lines are skipped.
// Line order is the classifier's output column order.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening labels file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels file: %w", err)
	}
	return labels, nil
}

func parseLabels(v any) []string {
	var raw []string
	switch val := v.(type) {
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	}
	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		labels = append(labels, strings.TrimSpace(l))
	}
	return labels
}

func legacyDatabaseURL() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnv("DB_USERNAME", "postgres"), getEnv("DB_PASSWORD", "")),
		Host:   getEnv("DB_HOST", "localhost") + ":" + getEnv("DB_PORT", "5432"),
		Path:   "/" + getEnv("DB_NAME", "emotion_reco"),
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
