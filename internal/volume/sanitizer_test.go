package volume

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securewipe/internal/cancel"
	"securewipe/internal/config"
	"securewipe/internal/execute"
	"securewipe/internal/logging"
	"securewipe/internal/progress"
	"securewipe/internal/system"
	"securewipe/internal/wipe"
	"securewipe/internal/wipeerr"
)

const mib = 1 << 20

// callLog records every side effect in order.
type callLog struct{ calls []string }

func (c *callLog) add(s string) { c.calls = append(c.calls, s) }

type fakeAPI struct {
	log      *callLog
	size     int64
	written  int64
	lockErr  error
	writeErr error
}

func (f *fakeAPI) Lock() error     { f.log.add("lock"); return f.lockErr }
func (f *fakeAPI) Dismount() error { f.log.add("dismount"); return nil }
func (f *fakeAPI) Unlock() error   { f.log.add("unlock"); return nil }
func (f *fakeAPI) Close() error    { f.log.add("close"); return nil }
func (f *fakeAPI) Size() (int64, error) {
	return f.size, nil
}
func (f *fakeAPI) WriteRawChunk(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written += int64(len(p))
	return len(p), nil
}

type fakeRunner struct {
	log   *callLog
	fail  string // command name that fails
	onRun func(execute.Command)
}

func (f *fakeRunner) Run(_ context.Context, cmd execute.Command) (string, error) {
	f.log.add("run " + cmd.String())
	if f.onRun != nil {
		f.onRun(cmd)
	}
	if f.fail != "" && strings.Contains(cmd.String(), f.fail) {
		return "bad superblock", wipeerr.New(wipeerr.ErrExternalTool, "%s failed: bad superblock", cmd.Name)
	}
	return "", nil
}

type fakeMounter struct{ log *callLog }

func (f fakeMounter) Mount(device, fs string) (string, error) {
	f.log.add("mount " + device)
	return "/mnt/fake", nil
}

func (f fakeMounter) Unmount(mp string) error {
	f.log.add("unmount " + mp)
	return nil
}

type fakeFiller struct {
	log *callLog
	err error
}

func (f fakeFiller) FillHeadroom(dir string, rep *progress.Reporter) (wipe.FillResult, error) {
	f.log.add("fill " + dir)
	rep.Advance(4*mib, time.Second)
	return wipe.FillResult{Dir: dir, Created: 1, Completed: 1, Written: 4 * mib, Deleted: 1}, f.err
}

type fakeChecker struct {
	system bool
	err    error
}

func (c fakeChecker) IsSystemVolume(string) (bool, error) { return c.system, c.err }

type fixture struct {
	s      *Sanitizer
	log    *callLog
	api    *fakeAPI
	runner *fakeRunner
	rec    *progress.Recorder
	token  *cancel.Token
}

func newFixture(t *testing.T, goos string) *fixture {
	t.Helper()
	log := &callLog{}
	api := &fakeAPI{log: log, size: 64 * mib}
	runner := &fakeRunner{log: log}
	rec := &progress.Recorder{}
	token := cancel.New()

	cfg := config.Default()
	cfg.Volume.MetadataDestroyBytes = 3 * mib
	cfg.Volume.AllowedFilesystems = []string{"ext4", "NTFS"}

	s := NewSanitizer(cfg, fakeChecker{}, runner, fakeFiller{log: log},
		system.SpaceFunc(func(string) (uint64, error) { return 100 * mib, nil }),
		token, rec, logging.NewNop(), nil)
	s.Open = func(target string) (VolumeAPI, error) {
		log.add("open " + target)
		return api, nil
	}
	s.Formatter = NewFormatter(goos, runner)
	s.Mounter = fakeMounter{log: log}
	return &fixture{s: s, log: log, api: api, runner: runner, rec: rec, token: token}
}

func job(t *testing.T, mode wipe.Mode, dryRun bool) wipe.WipeJob {
	t.Helper()
	j, err := wipe.NewWipeJob("/dev/sdz1", mode, 0, 3, "ext4", dryRun)
	require.NoError(t, err)
	return j
}

func statuses(res *Result) []string {
	var out []string
	for _, s := range res.Stages {
		out = append(out, s.Name+":"+s.Status)
	}
	return out
}

func TestStagesFor(t *testing.T) {
	assert.Equal(t, []Stage{LockAndDismount, MetadataDestroy}, StagesFor(wipe.ModeVolumeFast))
	assert.Equal(t, []Stage{LockAndDismount, InitialFormat, ReformatRefresh, FillFreeSpace, FinalFormat}, StagesFor(wipe.ModeVolumeSecure))
	assert.Equal(t, []Stage{LockAndDismount, MetadataDestroy, FinalFormat}, StagesFor(wipe.ModeVolumeParanoid))
	assert.Nil(t, StagesFor(wipe.ModeOverwrite))
}

func TestFastModeBracketsTheOverwrite(t *testing.T) {
	f := newFixture(t, "linux")

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeFast, false))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"open /dev/sdz1", "lock", "dismount",
		"unlock", "close",
		"run mkfs.ext4 -F -L WIPED /dev/sdz1",
	}, f.log.calls)
	assert.EqualValues(t, 3*mib, f.api.written)
	assert.EqualValues(t, 3*mib, res.MetadataBytes)
	assert.Equal(t, []string{"LockAndDismount:ok", "MetadataDestroy:ok"}, statuses(res))
}

func TestMetadataLimitedBySmallVolume(t *testing.T) {
	f := newFixture(t, "linux")
	f.api.size = 2 * mib

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeFast, false))
	require.NoError(t, err)
	assert.EqualValues(t, 2*mib, res.MetadataBytes)
}

func TestSecureModeOrder(t *testing.T) {
	f := newFixture(t, "linux")

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeSecure, false))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"open /dev/sdz1", "lock", "dismount", "unlock", "close",
		"run mkfs.ext4 -F -L WIPED -c /dev/sdz1",
		"run mkfs.ext4 -F -L WIPED /dev/sdz1",
		"mount /dev/sdz1", "fill /mnt/fake", "unmount /mnt/fake",
		"run mkfs.ext4 -F -L WIPED /dev/sdz1",
	}, f.log.calls)
	assert.Len(t, res.Stages, 5)
	assert.Equal(t, "/mnt/fake", res.Fill.Dir)
	assert.EqualValues(t, 4*mib, res.Processed)
}

func TestParanoidMode(t *testing.T) {
	t.Run("shred then create a filesystem", func(t *testing.T) {
		f := newFixture(t, "linux")

		res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeParanoid, false))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"open /dev/sdz1", "lock", "dismount", "unlock", "close",
			"run shred -v -n 3 /dev/sdz1",
			"run mkfs.ext4 -F -L WIPED /dev/sdz1",
		}, f.log.calls)
		assert.Equal(t, "FinalFormat:ok", statuses(res)[2])
	})

	t.Run("format /P leaves a filesystem", func(t *testing.T) {
		f := newFixture(t, "windows")
		j, err := wipe.NewWipeJob("E:", wipe.ModeVolumeParanoid, 2, 3, "ntfs", false)
		require.NoError(t, err)

		res, err := f.s.Run(context.Background(), j)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"open E:", "lock", "dismount", "unlock", "close",
			"run format E: /FS:NTFS /V:WIPED /P:2 /Y",
		}, f.log.calls)
		assert.Equal(t, "FinalFormat:skipped", statuses(res)[2])
	})
}

func TestSystemVolumeIsNeverTouched(t *testing.T) {
	modes := []wipe.Mode{wipe.ModeVolumeFast, wipe.ModeVolumeSecure, wipe.ModeVolumeParanoid}
	checkers := map[string]fakeChecker{
		"system volume": {system: true},
		"check failed":  {err: errors.New("partitions unavailable")},
	}

	for name, checker := range checkers {
		for _, mode := range modes {
			for _, dry := range []bool{false, true} {
				f := newFixture(t, "linux")
				f.s.Checker = checker

				res, err := f.s.Run(context.Background(), job(t, mode, dry))
				require.Error(t, err, "%s %s dry=%v", name, mode, dry)
				assert.ErrorIs(t, err, wipeerr.ErrSystemVolume)
				assert.Empty(t, f.log.calls, "%s %s dry=%v", name, mode, dry)
				assert.Empty(t, res.Stages)
				assert.Empty(t, res.Planned)
			}
		}
	}
}

func TestDryRunPerformsNothing(t *testing.T) {
	for _, mode := range []wipe.Mode{wipe.ModeVolumeFast, wipe.ModeVolumeSecure, wipe.ModeVolumeParanoid} {
		f := newFixture(t, "linux")

		res, err := f.s.Run(context.Background(), job(t, mode, true))
		require.NoError(t, err)
		assert.Empty(t, f.log.calls, mode.String())
		assert.NotEmpty(t, res.Planned)
		for _, sr := range res.Stages {
			assert.Equal(t, StatusDryRun, sr.Status, sr.Name)
		}
	}

	f := newFixture(t, "linux")
	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeSecure, true))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Would lock and dismount /dev/sdz1",
		"Would run: mkfs.ext4 -F -L WIPED -c /dev/sdz1",
		"Would run: mkfs.ext4 -F -L WIPED /dev/sdz1",
		"Would mount /dev/sdz1, fill its free space leaving 50.00 MB headroom, and unmount it",
		"Would run: mkfs.ext4 -F -L WIPED /dev/sdz1",
	}, res.Planned)
	assert.Contains(t, f.rec.Statuses(), "[DRY RUN] Would lock and dismount /dev/sdz1")
}

func TestCancelBetweenStages(t *testing.T) {
	f := newFixture(t, "linux")
	f.runner.onRun = func(cmd execute.Command) {
		if strings.Contains(cmd.String(), "-c") {
			f.token.Cancel()
		}
	}

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeSecure, false))
	require.Error(t, err)
	assert.True(t, wipeerr.IsCancelled(err))
	assert.Equal(t, wipeerr.ExitCancelled, wipeerr.ExitCode(err))
	assert.Equal(t, []string{"LockAndDismount:ok", "InitialFormat:ok"}, statuses(res))
	assert.Equal(t, "run mkfs.ext4 -F -L WIPED -c /dev/sdz1", f.log.calls[len(f.log.calls)-1])
}

func TestCancelDuringFillStillUnmounts(t *testing.T) {
	f := newFixture(t, "linux")
	f.s.Filler = fakeFiller{log: f.log, err: wipeerr.Cancelled("fill")}

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeSecure, false))
	require.Error(t, err)
	assert.True(t, wipeerr.IsCancelled(err))
	assert.Equal(t, "unmount /mnt/fake", f.log.calls[len(f.log.calls)-1])
	assert.Equal(t, "FillFreeSpace:cancelled", statuses(res)[3])
}

func TestCancelDuringMetadataReleasesLock(t *testing.T) {
	f := newFixture(t, "linux")
	f.token.Cancel()
	// cancelled before the first stage: nothing is opened
	_, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeFast, false))
	assert.True(t, wipeerr.IsCancelled(err))
	assert.Empty(t, f.log.calls)

	f = newFixture(t, "linux")
	f.s.Open = func(target string) (VolumeAPI, error) {
		f.log.add("open " + target)
		f.token.Cancel()
		return f.api, nil
	}
	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeFast, false))
	assert.True(t, wipeerr.IsCancelled(err))
	assert.Equal(t, []string{"open /dev/sdz1", "lock", "dismount", "unlock", "close"}, f.log.calls)
	assert.Equal(t, []string{"LockAndDismount:ok"}, statuses(res))
}

func TestFirstFailureAborts(t *testing.T) {
	f := newFixture(t, "linux")
	f.runner.fail = "-c"

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeSecure, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, wipeerr.ErrExternalTool)
	assert.Equal(t, wipeerr.ExitFailure, wipeerr.ExitCode(err))
	assert.Equal(t, []string{"LockAndDismount:ok", "InitialFormat:failed"}, statuses(res))
	assert.NotContains(t, f.log.calls, "mount /dev/sdz1")
}

func TestRawWriteFailureReleasesLock(t *testing.T) {
	f := newFixture(t, "linux")
	f.api.writeErr = errors.New("I/O error")

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeFast, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, wipeerr.ErrIOFailure)
	assert.Equal(t, []string{"open /dev/sdz1", "lock", "dismount", "unlock", "close"}, f.log.calls)
	assert.Equal(t, "MetadataDestroy:failed", statuses(res)[1])
}

func TestLockFailureClosesHandle(t *testing.T) {
	f := newFixture(t, "linux")
	f.api.lockErr = errors.New("volume in use")

	_, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeFast, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, wipeerr.ErrAccessDenied)
	assert.Equal(t, []string{"open /dev/sdz1", "lock", "close"}, f.log.calls)
}

func TestRejectsBadInput(t *testing.T) {
	f := newFixture(t, "linux")

	_, err := f.s.Run(context.Background(), job(t, wipe.ModeOverwrite, false))
	assert.ErrorIs(t, err, wipeerr.ErrInvalidTarget)

	j, err := wipe.NewWipeJob("/dev/sdz1", wipe.ModeVolumeSecure, 0, 0, "zfs", false)
	require.NoError(t, err)
	_, err = f.s.Run(context.Background(), j)
	assert.ErrorIs(t, err, wipeerr.ErrInvalidTarget)

	_, err = f.s.Run(context.Background(), job(t, wipe.ModeVolumeSecure, false).WithLabel("-rf"))
	assert.ErrorIs(t, err, wipeerr.ErrInvalidTarget)
	assert.Empty(t, f.log.calls)
}

func TestLabelTooLongForFilesystemRejectedUpFront(t *testing.T) {
	f := newFixture(t, "linux")

	res, err := f.s.Run(context.Background(), job(t, wipe.ModeVolumeFast, false).WithLabel("backup_2024_disk1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, wipeerr.ErrInvalidTarget)
	assert.Contains(t, err.Error(), "too long for ext4")
	assert.Empty(t, f.log.calls)
	assert.Empty(t, res.Stages)
}
