// Package reporting writes the per-run JSON report.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"securewipe/internal/config"
	"securewipe/internal/wipeerr"
)

const Version = "2.0.0"

// Report представляет JSON отчёт о запуске
type Report struct {
	RunID      string                 `json:"run_id"`
	Version    string                 `json:"version"`
	Timestamp  time.Time              `json:"timestamp"`
	Hostname   string                 `json:"hostname"`
	Mode       string                 `json:"mode"`
	Target     string                 `json:"target"`
	Passes     int                    `json:"passes,omitempty"`
	Filesystem string                 `json:"filesystem,omitempty"`
	DryRun     bool                   `json:"dry_run"`
	Config     map[string]interface{} `json:"config"`
	Summary    SummaryReport          `json:"summary"`
	Stages     []StageReport          `json:"stages,omitempty"`
	Status     string                 `json:"status"`
	ExitCode   int                    `json:"exit_code"`
	Error      string                 `json:"error,omitempty"`
	Duration   string                 `json:"duration"`
}

// SummaryReport holds the run totals.
type SummaryReport struct {
	BytesProcessed   uint64 `json:"bytes_processed"`
	BytesPlanned     uint64 `json:"bytes_planned"`
	FilesOverwritten int    `json:"files_overwritten"`
	FilesSkipped     int    `json:"files_skipped"`
	FilesFailed      int    `json:"files_failed"`
	FilesDeleted     int    `json:"files_deleted"`
	DirsDeleted      int    `json:"dirs_deleted"`
	EntriesRemaining int    `json:"entries_remaining"`
	JunkFilesCreated int    `json:"junk_files_created"`
	JunkFilesDeleted int    `json:"junk_files_deleted"`
	MetadataBytes    uint64 `json:"metadata_bytes,omitempty"`
}

// StageReport представляет отчёт об этапе очистки тома
type StageReport struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

// New starts a report for a run beginning at start.
func New(cfg *config.Config, mode, target string, dryRun bool, start time.Time) *Report {
	host, _ := os.Hostname()
	return &Report{
		RunID:     uuid.NewString(),
		Version:   Version,
		Timestamp: start,
		Hostname:  host,
		Mode:      mode,
		Target:    target,
		DryRun:    dryRun,
		Config:    configToMap(cfg),
	}
}

// Finish records the outcome of the run.
func (r *Report) Finish(runErr error, end time.Time) {
	r.ExitCode = wipeerr.ExitCode(runErr)
	r.Duration = end.Sub(r.Timestamp).String()
	switch r.ExitCode {
	case wipeerr.ExitOK:
		r.Status = "completed"
	case wipeerr.ExitCancelled:
		r.Status = "cancelled"
	default:
		r.Status = "failed"
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
}

// AddStage appends one volume stage outcome.
func (r *Report) AddStage(name, status string, start, end time.Time, stageErr string) {
	r.Stages = append(r.Stages, StageReport{
		Name:      name,
		Status:    status,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start).String(),
		Error:     stageErr,
	})
}

// SaveReport сохраняет отчёт в JSON файл и возвращает его путь. Ничего не
// делает, если отчёты выключены.
func SaveReport(report *Report, cfg *config.Config) (string, error) {
	if !cfg.Reporting.Enabled {
		return "", nil
	}

	if err := os.MkdirAll(cfg.Reporting.LocalPath, 0755); err != nil {
		return "", errors.Wrapf(err, "create report directory %s", cfg.Reporting.LocalPath)
	}

	filename := fmt.Sprintf("securewipe_report_%s_%s.json", report.Timestamp.Format("20060102_150405"), report.RunID[:8])
	path := filepath.Join(cfg.Reporting.LocalPath, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal report")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "write report %s", path)
	}
	return path, nil
}

// configToMap keeps the policy knobs that shaped the run.
func configToMap(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"wipe": map[string]interface{}{
			"chunk_size":         cfg.Wipe.ChunkSize,
			"fill_chunk_size":    cfg.Wipe.FillChunkSize,
			"fill_strategy":      cfg.Wipe.FillStrategy,
			"headroom_bytes":     cfg.Wipe.HeadroomBytes,
			"final_sweep_passes": cfg.Wipe.FinalSweepPasses,
		},
		"volume": map[string]interface{}{
			"metadata_destroy_bytes": cfg.Volume.MetadataDestroyBytes,
			"poll_interval":          cfg.Volume.PollInterval,
			"label":                  cfg.Volume.Label,
		},
		"logging": map[string]interface{}{
			"level": cfg.Logging.Level,
			"file":  cfg.Logging.File,
		},
	}
}
