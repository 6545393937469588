package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "AUTOML_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads the YAML file at path, then applies environment overrides.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (AUTOML_SEARCH_MAX_TRIALS, AUTOML_LOGGING_LEVEL, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty path skips the file. Environment variables map to keys by
// dropping the prefix and splitting on the first underscore:
//
//	AUTOML_SEARCH_MAX_TRIALS -> search.max_trials
//	AUTOML_ARTIFACTS_MINIO_BUCKET -> artifacts.minio_bucket
//
// AUTOML_SEARCH_TRAINERS takes a comma separated list.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return content, nil
}

// envKeyValue maps AUTOML_SECTION_FIELD_NAME to section.field_name.
func envKeyValue(key, value string) (string, any) {
	lower := strings.ToLower(strings.TrimPrefix(key, envPrefix))

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}

	key = parts[0] + "." + parts[1]

	if key == "search.trainers" {
		var list []string

		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}

		return key, list
	}

	return key, value
}
