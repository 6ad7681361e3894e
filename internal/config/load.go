package config

import (
	"fmt"
	"os"

	"github.com/animus-labs/animus-ingest/internal/platform/env"
	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML document over Default().
func Parse(input []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Load reads the YAML file named by INGEST_CONFIG (when set), applies the
// INGEST_* environment overrides and validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := env.String("INGEST_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		cfg, err = Parse(raw)
		if err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error
	cfg.WorkingDirectory = env.String("INGEST_WORKING_DIRECTORY", cfg.WorkingDirectory)
	cfg.LogFileDirectory = env.String("INGEST_LOG_FILE_DIRECTORY", cfg.LogFileDirectory)
	cfg.LoggingLevel = env.String("INGEST_LOGGING_LEVEL", cfg.LoggingLevel)
	cfg.Collection = env.String("INGEST_COLLECTION", cfg.Collection)
	cfg.Scheme = env.String("INGEST_SCHEME", cfg.Scheme)
	cfg.PreviewScheme = env.String("INGEST_PREVIEW_SCHEME", cfg.PreviewScheme)
	cfg.CollectionPattern = env.String("INGEST_COLLECTION_PATTERN", cfg.CollectionPattern)
	cfg.ProbeAddr = env.String("INGEST_PROBE_ADDR", cfg.ProbeAddr)
	cfg.DataSources = env.Strings("INGEST_DATA_SOURCES", cfg.DataSources)
	cfg.StagedExtensions = env.Strings("INGEST_STAGED_EXTENSIONS", cfg.StagedExtensions)

	tasks := env.Strings("INGEST_TASK_TYPES", nil)
	if tasks != nil {
		cfg.TaskTypes = make(TaskSet, 0, len(tasks))
		for _, t := range tasks {
			cfg.TaskTypes = append(cfg.TaskTypes, TaskType(t))
		}
	}

	if cfg.LogToFile, err = env.Bool("INGEST_LOG_TO_FILE", cfg.LogToFile); err != nil {
		return err
	}
	if cfg.UseLocalFiles, err = env.Bool("INGEST_USE_LOCAL_FILES", cfg.UseLocalFiles); err != nil {
		return err
	}
	if cfg.CleanupFilesWhenStoring, err = env.Bool("INGEST_CLEANUP_FILES_WHEN_STORING", cfg.CleanupFilesWhenStoring); err != nil {
		return err
	}
	if cfg.Interval, err = env.Duration("INGEST_INTERVAL", cfg.Interval); err != nil {
		return err
	}
	if cfg.MaxWorkers, err = env.Int("INGEST_MAX_WORKERS", cfg.MaxWorkers); err != nil {
		return err
	}
	return nil
}
