package config

import (
	"fmt"
)

// ApplyProfile применяет профиль производительности к конфигурации.
// Профили меняют только размеры блоков и запас свободного места.
func ApplyProfile(cfg *Config, profile string) error {
	switch profile {
	case "fast":
		cfg.Wipe.ChunkSize = 4 * MiB
		cfg.Wipe.FillChunkSize = 64 * MiB
		cfg.Wipe.HeadroomBytes = 50 * MiB
		cfg.Wipe.FinalSweepPasses = 1
	case "balanced":
		cfg.Wipe.ChunkSize = 1 * MiB
		cfg.Wipe.FillChunkSize = 32 * MiB
		cfg.Wipe.HeadroomBytes = 50 * MiB
		cfg.Wipe.FinalSweepPasses = 3
	case "thorough":
		// Small fill chunks squeeze the last blocks out of large-cluster filesystems.
		cfg.Wipe.ChunkSize = 1 * MiB
		cfg.Wipe.FillChunkSize = 4 * MiB
		cfg.Wipe.HeadroomBytes = 64 * MiB
		cfg.Wipe.FinalSweepPasses = 5
	default:
		return fmt.Errorf("неизвестный профиль: %s", profile)
	}
	if cfg.Wipe.FillMaxFileSize < cfg.Wipe.FillChunkSize {
		cfg.Wipe.FillMaxFileSize = cfg.Wipe.FillChunkSize
	}
	return nil
}
