package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// Config is the engine configuration document.
type Config struct {
	Wipe      WipeConfig      `yaml:"wipe"`
	Progress  ProgressConfig  `yaml:"progress"`
	Volume    VolumeConfig    `yaml:"volume"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reporting ReportingConfig `yaml:"reporting"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// WipeConfig holds the file-level overwrite and fill policy.
type WipeConfig struct {
	ChunkSize        int64  `yaml:"chunk_size"`
	FillChunkSize    int64  `yaml:"fill_chunk_size"`
	FillMaxFileSize  int64  `yaml:"fill_max_file_size"`
	HeadroomBytes    int64  `yaml:"headroom_bytes"`
	MinFreeBytes     int64  `yaml:"min_free_bytes"`
	FinalSweepPasses int    `yaml:"final_sweep_passes"`
	FillStrategy     string `yaml:"fill_strategy"` // chunked/headroom
	DefaultPasses    int    `yaml:"default_passes"`
}

// ProgressConfig controls throughput sampling and report throttling.
type ProgressConfig struct {
	ReportEveryBytes    int64  `yaml:"report_every_bytes"`
	ReportInterval      string `yaml:"report_interval"`
	SampleWindow        int    `yaml:"sample_window"`
	MinSamples          int    `yaml:"min_samples"`
	OverwriteMinElapsed string `yaml:"overwrite_min_elapsed"`
	FillMinElapsed      string `yaml:"fill_min_elapsed"`
	OverwriteMinSample  string `yaml:"overwrite_min_sample"`
	FillMinSample       string `yaml:"fill_min_sample"`
}

// VolumeConfig holds the whole-volume sanitization policy.
type VolumeConfig struct {
	MetadataDestroyBytes int64    `yaml:"metadata_destroy_bytes"`
	PollInterval         string   `yaml:"poll_interval"`
	ParanoidPasses       int      `yaml:"paranoid_passes"`
	Label                string   `yaml:"label"`
	DefaultFilesystem    string   `yaml:"default_filesystem"`
	AllowedFilesystems   []string `yaml:"allowed_filesystems"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ReportingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	LocalPath string `yaml:"local_path"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Wipe: WipeConfig{
			ChunkSize:        1 * MiB,
			FillChunkSize:    32 * MiB,
			FillMaxFileSize:  1 * GiB,
			HeadroomBytes:    50 * MiB,
			MinFreeBytes:     1 * MiB,
			FinalSweepPasses: 3,
			FillStrategy:     "chunked",
			DefaultPasses:    1,
		},
		Progress: ProgressConfig{
			ReportEveryBytes:    5 * MiB,
			ReportInterval:      "5s",
			SampleWindow:        20,
			MinSamples:          5,
			OverwriteMinElapsed: "3s",
			FillMinElapsed:      "5s",
			OverwriteMinSample:  "1ms",
			FillMinSample:       "10ms",
		},
		Volume: VolumeConfig{
			MetadataDestroyBytes: 512 * MiB,
			PollInterval:         "500ms",
			ParanoidPasses:       3,
			Label:                "WIPED",
			DefaultFilesystem:    defaultFilesystem(runtime.GOOS),
			AllowedFilesystems:   DefaultFilesystems(runtime.GOOS),
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Reporting: ReportingConfig{
			Enabled:   false,
			LocalPath: "./reports",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// DefaultFilesystems returns the filesystem allow-list for a platform. Values
// from this list are the only ones ever passed to a format tool.
func DefaultFilesystems(goos string) []string {
	switch goos {
	case "windows":
		return []string{"NTFS", "exFAT", "FAT32", "ReFS"}
	case "darwin":
		return []string{"APFS", "JHFS+", "ExFAT", "FAT32"}
	default:
		return []string{"ext4", "ext3", "ext2", "xfs", "btrfs", "vfat", "exfat", "ntfs"}
	}
}

func defaultFilesystem(goos string) string {
	switch goos {
	case "windows":
		return "NTFS"
	case "darwin":
		return "ExFAT"
	default:
		return "ext4"
	}
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Unset keys keep their defaults.
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate проверяет конфигурацию на валидность
func Validate(config *Config) error {
	w := config.Wipe
	if w.ChunkSize <= 0 || w.ChunkSize > 64*MiB {
		return fmt.Errorf("chunk size must be between 1 and %d bytes, got %d", 64*MiB, w.ChunkSize)
	}
	if w.FillChunkSize <= 0 || w.FillChunkSize > 256*MiB {
		return fmt.Errorf("fill chunk size must be between 1 and %d bytes, got %d", 256*MiB, w.FillChunkSize)
	}
	if w.FillMaxFileSize < w.FillChunkSize {
		return fmt.Errorf("fill max file size (%d) must not be smaller than fill chunk size (%d)", w.FillMaxFileSize, w.FillChunkSize)
	}
	if w.HeadroomBytes < 0 || w.MinFreeBytes < 0 {
		return fmt.Errorf("headroom and minimum free space cannot be negative")
	}
	if w.FinalSweepPasses < 0 || w.FinalSweepPasses > 10 {
		return fmt.Errorf("final sweep passes must be between 0 and 10, got %d", w.FinalSweepPasses)
	}
	if w.DefaultPasses <= 0 || w.DefaultPasses > 35 {
		return fmt.Errorf("default passes must be between 1 and 35, got %d", w.DefaultPasses)
	}
	switch w.FillStrategy {
	case "chunked", "headroom":
	default:
		return fmt.Errorf("invalid fill strategy: %s", w.FillStrategy)
	}

	p := config.Progress
	if p.ReportEveryBytes <= 0 {
		return fmt.Errorf("report_every_bytes must be positive, got %d", p.ReportEveryBytes)
	}
	if p.SampleWindow <= 0 || p.MinSamples <= 0 || p.MinSamples > p.SampleWindow {
		return fmt.Errorf("min samples (%d) must be between 1 and the sample window (%d)", p.MinSamples, p.SampleWindow)
	}
	for name, value := range map[string]string{
		"report_interval":       p.ReportInterval,
		"overwrite_min_elapsed": p.OverwriteMinElapsed,
		"fill_min_elapsed":      p.FillMinElapsed,
		"overwrite_min_sample":  p.OverwriteMinSample,
		"fill_min_sample":       p.FillMinSample,
		"poll_interval":         config.Volume.PollInterval,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration: %q", name, value)
		}
	}

	v := config.Volume
	if v.MetadataDestroyBytes <= 0 {
		return fmt.Errorf("metadata destroy size must be positive, got %d", v.MetadataDestroyBytes)
	}
	if v.ParanoidPasses <= 0 || v.ParanoidPasses > 35 {
		return fmt.Errorf("paranoid passes must be between 1 and 35, got %d", v.ParanoidPasses)
	}
	if len(v.AllowedFilesystems) == 0 {
		return fmt.Errorf("allowed filesystems list is empty")
	}
	if strings.ContainsAny(v.Label, " \t\"'`$;&|<>") {
		return fmt.Errorf("invalid volume label: %q", v.Label)
	}

	validLevels := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
	}
	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	if config.Metrics.Enabled && config.Metrics.Textfile != "" && !strings.HasSuffix(config.Metrics.Textfile, ".prom") {
		return fmt.Errorf("metrics textfile must end in .prom: %s", config.Metrics.Textfile)
	}

	return nil
}

// Save сохраняет конфигурацию в файл
func Save(config *Config, path string) error {
	if err := Validate(config); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Duration parses one of the configured duration strings, falling back when
// it is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// PollInterval возвращает интервал опроса внешних процессов
func (config *Config) PollInterval() time.Duration {
	return Duration(config.Volume.PollInterval, 500*time.Millisecond)
}

// ReportInterval возвращает минимальный интервал между отчётами о прогрессе
func (config *Config) ReportInterval() time.Duration {
	return Duration(config.Progress.ReportInterval, 5*time.Second)
}
