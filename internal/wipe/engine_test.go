package wipe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securewipe/internal/cancel"
	"securewipe/internal/config"
	"securewipe/internal/logging"
	"securewipe/internal/metrics"
	"securewipe/internal/progress"
	"securewipe/internal/system"
	"securewipe/internal/wipeerr"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Wipe.FillChunkSize = mib
	cfg.Wipe.FillMaxFileSize = 2 * mib
	cfg.Wipe.HeadroomBytes = 2 * mib
	return cfg
}

func newTestEngine(cfg *config.Config, disk *limitedDisk, emitter progress.Emitter, token *cancel.Token) *Engine {
	e := NewEngine(cfg, token, emitter, logging.NewNop(), metrics.NewCollector(), system.SpaceFunc(disk.free))
	e.newFiller = func() *SpaceFiller {
		f := e.defaultFiller()
		f.create = disk.create
		return f
	}
	return e
}

func TestOverwritePipelineEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.bin"), 10*mib)
	writeFile(t, filepath.Join(root, "docs", "two.bin"), 10*mib)
	writeFile(t, filepath.Join(root, "docs", "old", "three.bin"), 10*mib)

	disk := &limitedDisk{left: 3*mib + 512<<10}
	rec := &progress.Recorder{}
	e := newTestEngine(testConfig(), disk, rec, cancel.New())

	job, err := NewWipeJob(root, ModeOverwrite, 1, 1, "", false)
	require.NoError(t, err)
	res, err := e.Run(job)
	require.NoError(t, err)

	assert.EqualValues(t, 30*mib+3*mib+512<<10, res.Plan.TotalBytes)
	assert.Equal(t, 3, res.Overwrite.Overwritten)
	assert.Equal(t, 3, res.FilesDeleted)
	assert.Equal(t, 0, res.Sweep.Remaining)

	// Fill artifacts existed only inside the target and are gone again.
	assert.Equal(t, 3, res.Fill.Completed)
	assert.Equal(t, 4, res.Fill.Deleted)
	for _, p := range disk.paths {
		assert.Equal(t, root, filepath.Dir(p))
		assert.NoFileExists(t, p)
	}
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.LessOrEqual(t, res.Processed, res.Total+uint64(mib))
	updates := rec.Updates()
	require.NotEmpty(t, updates)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Percentage, updates[i-1].Percentage)
	}
	assert.Contains(t, rec.Statuses(), "Deleted 4 out of 4 temp files")
}

func TestFillTotalIncludesSpaceFreedByDeletion(t *testing.T) {
	root := t.TempDir()
	disk := &limitedDisk{left: 4 * mib}
	for _, name := range []string{"one.bin", "two.bin", "three.bin"} {
		path := filepath.Join(root, name)
		writeFile(t, path, 10*mib)
		disk.reclaimOnDelete(path, 10*mib)
	}
	rec := &progress.Recorder{}

	job, err := NewWipeJob(root, ModeOverwrite, 1, 1, "", false)
	require.NoError(t, err)
	res, err := newTestEngine(testConfig(), disk, rec, cancel.New()).Run(job)
	require.NoError(t, err)

	assert.EqualValues(t, 34*mib, res.Plan.TotalBytes)
	assert.EqualValues(t, 64*mib, res.Total)
	assert.Greater(t, res.Fill.Written, uint64(30*mib))
	assert.LessOrEqual(t, res.Processed, res.Total+uint64(mib))

	updates := rec.Updates()
	require.NotEmpty(t, updates)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Percentage, updates[i-1].Percentage)
	}
}

func TestHeadroomStrategyWithTooLittleSpace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.bin"), 1000)

	cfg := testConfig()
	cfg.Wipe.FillStrategy = "headroom"
	cfg.Wipe.HeadroomBytes = 50 * 1000 * 1000
	disk := &limitedDisk{left: 40 * 1000 * 1000}
	rec := &progress.Recorder{}

	job, err := NewWipeJob(root, ModeOverwrite, 0, 1, "", false)
	require.NoError(t, err)
	res, err := newTestEngine(cfg, disk, rec, cancel.New()).Run(job)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Fill.Created)
	assert.Empty(t, disk.paths)
	assert.Contains(t, rec.Statuses(), "Phase 3 completed. 0 temp files created.")
}

func TestDryRunTouchesNothing(t *testing.T) {
	for _, mode := range []Mode{ModeQuick, ModeOverwrite} {
		t.Run(mode.String(), func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "a.bin"), 4096)
			writeFile(t, filepath.Join(root, "sub", "b.bin"), 10)
			before, err := os.ReadFile(filepath.Join(root, "a.bin"))
			require.NoError(t, err)

			disk := &limitedDisk{left: 10 * mib}
			rec := &progress.Recorder{}
			job, err := NewWipeJob(root, mode, 0, 1, "", true)
			require.NoError(t, err)

			res, err := newTestEngine(testConfig(), disk, rec, cancel.New()).Run(job)
			require.NoError(t, err)
			assert.NotEmpty(t, res.Planned)
			assert.Empty(t, disk.paths)

			after, err := os.ReadFile(filepath.Join(root, "a.bin"))
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.FileExists(t, filepath.Join(root, "sub", "b.bin"))

			var announced int
			for _, s := range rec.Statuses() {
				if strings.HasPrefix(s, "[DRY RUN] ") {
					announced++
				}
			}
			assert.Equal(t, len(res.Planned), announced)
		})
	}
}

func TestCancelledPipelineSkipsLaterPhases(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.bin"), 2*mib)
	writeFile(t, filepath.Join(root, "b.bin"), mib)

	token := cancel.New()
	emitter := &cancelOnProgress{token: token}
	disk := &limitedDisk{left: 10 * mib}

	job, err := NewWipeJob(root, ModeOverwrite, 1, 1, "", false)
	require.NoError(t, err)
	res, err := newTestEngine(testConfig(), disk, emitter, token).Run(job)

	assert.Equal(t, wipeerr.ExitCancelled, wipeerr.ExitCode(err))
	assert.Equal(t, 0, res.FilesDeleted)
	assert.Empty(t, disk.paths)
	assert.FileExists(t, filepath.Join(root, "b.bin"))
}

func TestQuickMode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 1)
	writeFile(t, filepath.Join(root, "d", "b.txt"), 1)

	rec := &progress.Recorder{}
	job, err := NewWipeJob(root, ModeQuick, 0, 1, "", false)
	require.NoError(t, err)
	res, err := newTestEngine(testConfig(), &limitedDisk{}, rec, cancel.New()).Run(job)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Quick.Files)
	assert.Contains(t, rec.Statuses(), "Quick wipe completed: 2 files and 1 directories deleted")
}

func TestRunRejectsVolumeModes(t *testing.T) {
	job, err := NewWipeJob("/dev/sdb1", ModeVolumeSecure, 0, 0, "ext4", false)
	require.NoError(t, err)
	_, err = newTestEngine(testConfig(), &limitedDisk{}, nil, cancel.New()).Run(job)
	assert.ErrorIs(t, err, wipeerr.ErrInvalidTarget)
}
