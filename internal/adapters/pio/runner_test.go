package pio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashhunt/internal/domain"
)

// capturePublisher records published events for assertions
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturePublisher) Publish(event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) all() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// writeStubTool writes a shell script standing in for the pio executable
func writeStubTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub tool scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "pio")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func TestBuild_Success(t *testing.T) {
	tool := writeStubTool(t, `
echo "Processing dev (board: esp32dev)"
echo "Compiling .pio/build/dev/src/main.cpp.o"
echo "Linking .pio/build/dev/firmware.elf"
exit 0
`)
	pub := &capturePublisher{}
	runner := NewRunner(tool, t.TempDir(), pub)

	ok, summary := runner.Build(context.Background(), "dev")
	assert.True(t, ok)
	assert.Empty(t, summary)

	events := pub.all()
	require.Len(t, events, 3)
	for _, event := range events {
		progress, isProgress := event.(domain.FlashProgress)
		require.True(t, isProgress)
		assert.Equal(t, domain.StageBuilding, progress.Stage)
		assert.LessOrEqual(t, progress.Percent, 50)
	}
}

func TestBuild_FailureReportsLastErrorLine(t *testing.T) {
	tool := writeStubTool(t, `
echo "Compiling .pio/build/dev/src/main.cpp.o"
echo "error: undefined reference to foo"
echo "Compilation terminated."
echo "========================="
exit 1
`)
	pub := &capturePublisher{}
	runner := NewRunner(tool, t.TempDir(), pub)

	ok, summary := runner.Build(context.Background(), "dev")
	assert.False(t, ok)
	assert.Equal(t, "error: undefined reference to foo", summary)
}

func TestBuild_FailureFallsBackToLastNonSeparatorLine(t *testing.T) {
	tool := writeStubTool(t, `
echo "Processing dev (board: esp32dev)"
echo "Took 3.21 seconds"
echo "====================="
exit 1
`)
	pub := &capturePublisher{}
	runner := NewRunner(tool, t.TempDir(), pub)

	ok, summary := runner.Build(context.Background(), "dev")
	assert.False(t, ok)
	assert.Equal(t, "Took 3.21 seconds", summary)
}

func TestBuild_FailureSummaryTruncated(t *testing.T) {
	long := strings.Repeat("x", 300)
	tool := writeStubTool(t, `
echo "error: `+long+`"
exit 1
`)
	pub := &capturePublisher{}
	runner := NewRunner(tool, t.TempDir(), pub)

	ok, summary := runner.Build(context.Background(), "dev")
	assert.False(t, ok)
	assert.Len(t, summary, 200)
	assert.True(t, strings.HasPrefix(summary, "error: "))
}

func TestBuild_ToolMissing(t *testing.T) {
	pub := &capturePublisher{}
	runner := NewRunner("definitely-not-a-real-pio-binary", t.TempDir(), pub)

	ok, summary := runner.Build(context.Background(), "dev")
	assert.False(t, ok)
	assert.Contains(t, summary, "not installed")
}

func TestFlash_InvokesUploadTarget(t *testing.T) {
	// The stub echoes its arguments so the test can verify the upload
	// invocation contract.
	tool := writeStubTool(t, `
echo "args: $@"
echo "Writing at 0x00010000... (50 %)"
echo "Wrote 1044480 bytes at 0x00010000"
exit 0
`)
	pub := &capturePublisher{}
	runner := NewRunner(tool, t.TempDir(), pub)

	ok := runner.Flash(context.Background(), "/dev/ttyUSB0", "dev")
	assert.True(t, ok)

	events := pub.all()
	require.Len(t, events, 3)

	first := events[0].(domain.FlashProgress)
	assert.Equal(t, domain.StageWriting, first.Stage)
	assert.Contains(t, first.Message, "run -e dev -t upload --upload-port /dev/ttyUSB0")

	mid := events[1].(domain.FlashProgress)
	assert.Equal(t, 75, mid.Percent)

	last := events[2].(domain.FlashProgress)
	assert.Equal(t, 90, last.Percent)
}

func TestUploadOTA_UsesOTAStage(t *testing.T) {
	tool := writeStubTool(t, `
echo "Uploading firmware.bin"
exit 0
`)
	pub := &capturePublisher{}
	runner := NewRunner(tool, t.TempDir(), pub)

	ok := runner.UploadOTA(context.Background(), "10.0.0.5", "dev")
	assert.True(t, ok)

	events := pub.all()
	require.Len(t, events, 1)
	progress := events[0].(domain.FlashProgress)
	assert.Equal(t, domain.StageOTAUpload, progress.Stage)
}

func TestFlash_FailureExitCode(t *testing.T) {
	tool := writeStubTool(t, `
echo "A fatal error occurred: Could not connect"
exit 2
`)
	pub := &capturePublisher{}
	runner := NewRunner(tool, t.TempDir(), pub)

	assert.False(t, runner.Flash(context.Background(), "/dev/ttyUSB0", "dev"))
}
