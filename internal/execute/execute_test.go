package execute

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securewipe/internal/cancel"
	"securewipe/internal/logging"
	"securewipe/internal/progress"
	"securewipe/internal/wipeerr"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{Name: "mkfs.ext4", Args: []string{"-F", "-L", "MY DISK", "/dev/sdb1"}}
	assert.Equal(t, `mkfs.ext4 -F -L "MY DISK" /dev/sdb1`, cmd.String())
}

func TestSupervisorCapturesOutput(t *testing.T) {
	requireShell(t)
	s := NewSupervisor(10*time.Millisecond, cancel.New(), logging.NewNop())

	out, err := s.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo formatted"}})
	require.NoError(t, err)
	assert.Equal(t, "formatted\n", out)
}

func TestSupervisorNonZeroExit(t *testing.T) {
	requireShell(t)
	s := NewSupervisor(10*time.Millisecond, cancel.New(), logging.NewNop())

	_, err := s.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo 'device busy' >&2; exit 3"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, wipeerr.ErrExternalTool)
	assert.Contains(t, err.Error(), "device busy")
	assert.Equal(t, wipeerr.ExitFailure, wipeerr.ExitCode(err))
}

func TestSupervisorMissingTool(t *testing.T) {
	s := NewSupervisor(10*time.Millisecond, cancel.New(), logging.NewNop())
	_, err := s.Run(context.Background(), Command{Name: "securewipe-no-such-tool"})
	assert.ErrorIs(t, err, wipeerr.ErrExternalTool)
}

func TestSupervisorTerminatesOnCancel(t *testing.T) {
	requireShell(t)
	token := cancel.New()
	s := NewSupervisor(10*time.Millisecond, token, logging.NewNop())
	s.Grace = time.Second

	go func() {
		time.Sleep(100 * time.Millisecond)
		token.Cancel()
	}()

	start := time.Now()
	_, err := s.Run(context.Background(), Command{Name: "sleep", Args: []string{"30"}})
	require.Error(t, err)
	assert.True(t, wipeerr.IsCancelled(err))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestSupervisorStopsOnContextCancel(t *testing.T) {
	requireShell(t)
	s := NewSupervisor(10*time.Millisecond, cancel.New(), logging.NewNop())
	ctx, stop := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer stop()

	_, err := s.Run(ctx, Command{Name: "sleep", Args: []string{"30"}})
	assert.True(t, wipeerr.IsCancelled(err))
}

func TestSupervisorRefusesAfterCancel(t *testing.T) {
	token := cancel.New()
	token.Cancel()
	_, err := NewSupervisor(0, token, logging.NewNop()).Run(context.Background(), Command{Name: "true"})
	assert.True(t, wipeerr.IsCancelled(err))
}

func TestDryRunRunnerRecordsOnly(t *testing.T) {
	rec := &progress.Recorder{}
	d := NewDryRunRunner(rec, logging.NewNop())

	cmd := Command{Name: "shred", Args: []string{"-v", "-n", "3", "/dev/sdb"}}
	out, err := d.Run(context.Background(), cmd)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []Command{cmd}, d.Commands())
	require.Len(t, rec.Statuses(), 1)
	assert.True(t, strings.HasSuffix(rec.Statuses()[0], "shred -v -n 3 /dev/sdb"))
}

func TestTailBufferKeepsEnd(t *testing.T) {
	b := &tailBuffer{limit: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}
