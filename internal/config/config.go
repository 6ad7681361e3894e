// Package config holds the ingest worker configuration: where units stage
// their files, how they log, which tasks run and how the collection names its
// files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

type TaskType string

const (
	TaskStore  TaskType = "store"
	TaskIngest TaskType = "ingest"
	TaskModify TaskType = "modify"
	TaskVisit  TaskType = "visit"
	// TaskScrape runs the pipeline without touching the archive and keeps the
	// workspace so the artifacts can be inspected afterwards.
	TaskScrape TaskType = "scrape"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskStore, TaskIngest, TaskModify, TaskVisit, TaskScrape:
		return true
	}
	return false
}

// TaskSet is an ordered, duplicate free list of task types.
type TaskSet []TaskType

func (s TaskSet) Has(t TaskType) bool {
	return slices.Contains(s, t)
}

// HasAny reports whether at least one of ts is in the set.
func (s TaskSet) HasAny(ts ...TaskType) bool {
	for _, t := range ts {
		if s.Has(t) {
			return true
		}
	}
	return false
}

type Config struct {
	// WorkingDirectory is the staging root; each unit works in a sub-directory.
	WorkingDirectory string `yaml:"working_directory"`
	LogToFile        bool   `yaml:"log_to_file"`
	// LogFileDirectory overrides WorkingDirectory as the parent of unit log files.
	LogFileDirectory string `yaml:"log_file_directory"`
	LoggingLevel     string `yaml:"logging_level"`

	TaskTypes TaskSet `yaml:"task_types"`
	// PreserveTaskTypes keep a unit's workspace on stop when any is active.
	PreserveTaskTypes TaskSet `yaml:"preserve_task_types"`

	UseLocalFiles      bool     `yaml:"use_local_files"`
	DataSources        []string `yaml:"data_sources"`
	RecurseDataSources bool     `yaml:"recurse_data_sources"`
	// DataSourceExtensions filter the entries a local data source reports.
	DataSourceExtensions []string `yaml:"data_source_extensions"`
	// StagedExtensions select the workspace files whose headers are reused.
	StagedExtensions []string `yaml:"staged_extensions"`

	CleanupFilesWhenStoring bool `yaml:"cleanup_files_when_storing"`

	Collection            string   `yaml:"collection"`
	CollectionPattern     string   `yaml:"collection_pattern"`
	Scheme                string   `yaml:"scheme"`
	PreviewScheme         string   `yaml:"preview_scheme"`
	StripExtensions       []string `yaml:"strip_extensions"`
	CompressionExtensions []string `yaml:"compression_extensions"`

	// Interval is the width of the time window grouping listing entries into units.
	Interval   time.Duration `yaml:"interval"`
	MaxWorkers int           `yaml:"max_workers"`

	ProbeAddr string `yaml:"probe_addr"`
}

func Default() Config {
	return Config{
		WorkingDirectory:      "/data/ingest",
		LoggingLevel:          "info",
		TaskTypes:             TaskSet{TaskStore, TaskIngest},
		PreserveTaskTypes:     TaskSet{TaskScrape},
		DataSourceExtensions:  []string{".fits", ".fits.gz", ".fits.bz2", ".fits.header"},
		StagedExtensions:      []string{".fits"},
		CollectionPattern:     ".*",
		Scheme:                "cadc",
		PreviewScheme:         "cadc",
		StripExtensions:       []string{".fits", ".fits.gz", ".fits.bz2", ".fits.header"},
		CompressionExtensions: []string{".gz", ".bz2", ".header"},
		Interval:              time.Hour,
		MaxWorkers:            2,
		ProbeAddr:             ":8090",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.WorkingDirectory) == "" {
		return errors.New("working_directory is required")
	}
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New("collection is required")
	}
	if strings.TrimSpace(c.Scheme) == "" {
		return errors.New("scheme is required")
	}
	if len(c.TaskTypes) == 0 {
		return errors.New("task_types must be non-empty")
	}
	for i, t := range c.TaskTypes {
		if !t.Valid() {
			return fmt.Errorf("task_types[%d] unsupported: %q", i, t)
		}
	}
	for i, t := range c.PreserveTaskTypes {
		if !t.Valid() {
			return fmt.Errorf("preserve_task_types[%d] unsupported: %q", i, t)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.MaxWorkers < 1 {
		return errors.New("max_workers must be >= 1")
	}
	return nil
}

// Level parses LoggingLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(c.LoggingLevel) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LoggingLevel))); err != nil {
		return 0, fmt.Errorf("logging_level: %w", err)
	}
	return level, nil
}

// Clone returns a deep copy; slices in the result never alias the receiver's.
func (c Config) Clone() Config {
	out := c
	out.TaskTypes = slices.Clone(c.TaskTypes)
	out.PreserveTaskTypes = slices.Clone(c.PreserveTaskTypes)
	out.DataSources = slices.Clone(c.DataSources)
	out.DataSourceExtensions = slices.Clone(c.DataSourceExtensions)
	out.StagedExtensions = slices.Clone(c.StagedExtensions)
	out.StripExtensions = slices.Clone(c.StripExtensions)
	out.CompressionExtensions = slices.Clone(c.CompressionExtensions)
	return out
}
