// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/streamgate/streamgate/internal/decision"
)

// writeShim installs an executable shell script and returns its path. The
// script receives the ffmpeg args; the last argument is the variant playlist
// pattern inside the session directory.
func writeShim(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shim tests use shell scripts")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	// #nosec G306 -- test helper script needs to be executable
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// playlistShim emulates a healthy ffmpeg: it derives the session directory
// from its last argument, publishes a master playlist and keeps running.
const playlistShim = `#!/bin/sh
for last; do :; done
dir=$(dirname "$last")
printf '#EXTM3U\n#EXTINF:6.0,\nstream_0_0.ts\n' > "$dir/main.m3u8"
sleep 30
`

const failShim = `#!/bin/sh
echo "Unrecognized option" >&2
exit 1
`

// completedShim emulates a source short enough to transcode inside the
// readiness window: it publishes a finished playlist and exits cleanly.
const completedShim = `#!/bin/sh
for last; do :; done
dir=$(dirname "$last")
printf '#EXTM3U\n#EXTINF:2.0,\nstream_0_0.ts\n#EXT-X-ENDLIST\n' > "$dir/main.m3u8"
exit 0
`

func TestRunnerBecomesReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	shim := writeShim(t, playlistShim)
	dir := t.TempDir()
	logger := zerolog.New(io.Discard)

	r, err := startRunner(shim, []string{filepath.Join(dir, "stream_%v.m3u8")}, dir, "http://src", decision.ModeFullTranscode, logger)
	require.NoError(t, err)
	defer r.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.WaitReady(ctx))

	assert.True(t, r.Running())
	assert.Equal(t, "http://src", r.SourceURL())
	assert.Equal(t, decision.ModeFullTranscode, r.Mode())

	_, err = os.Stat(filepath.Join(dir, "main.m3u8"))
	assert.NoError(t, err)
}

func TestRunnerStartupFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	shim := writeShim(t, failShim)
	dir := t.TempDir()
	logger := zerolog.New(io.Discard)

	r, err := startRunner(shim, []string{filepath.Join(dir, "stream_%v.m3u8")}, dir, "http://src", decision.ModeAudioOnly, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err = r.WaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupFailed)
	assert.Less(t, time.Since(start), 5*time.Second, "startup failure must surface fast, not wait for the readiness window")
	assert.False(t, r.Running())
}

func TestRunnerShortSourceCompletes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	shim := writeShim(t, completedShim)
	dir := t.TempDir()

	r, err := startRunner(shim, []string{filepath.Join(dir, "stream_%v.m3u8")}, dir, "http://src", decision.ModeAudioOnly, zerolog.New(io.Discard))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The process usually exits before WaitReady observes the playlist; a
	// complete playlist on disk is success, not a startup failure.
	require.NoError(t, r.WaitReady(ctx))
	assert.False(t, r.Running())

	_, err = os.Stat(filepath.Join(dir, "main.m3u8"))
	assert.NoError(t, err)
}

func TestRunnerKillIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	shim := writeShim(t, playlistShim)
	dir := t.TempDir()

	r, err := startRunner(shim, []string{filepath.Join(dir, "stream_%v.m3u8")}, dir, "http://src", decision.ModeFullTranscode, zerolog.New(io.Discard))
	require.NoError(t, err)

	r.Kill()
	r.Kill()
	assert.False(t, r.Running())
}

func TestRunnerWaitReadyCancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// A shim that never produces a playlist.
	shim := writeShim(t, "#!/bin/sh\nsleep 30\n")
	dir := t.TempDir()

	r, err := startRunner(shim, []string{filepath.Join(dir, "stream_%v.m3u8")}, dir, "http://src", decision.ModeFullTranscode, zerolog.New(io.Discard))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = r.WaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.Running(), "cancellation must kill the process")
}
