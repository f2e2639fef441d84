package pio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"flashhunt/internal/domain"
	"flashhunt/internal/logging"
)

// Build compiles the firmware for envName. Each output line becomes a
// flash_progress event with stage "building". On failure the summary
// is the last classified error line, or the last non-separator line
// when nothing matched the markers.
func (r *Runner) Build(ctx context.Context, envName string) (bool, string) {
	logging.Logger.Info("Starting firmware build", "env", envName, "dir", r.projectDir)

	cmd := exec.CommandContext(ctx, r.pioPath, "run", "-e", envName)
	cmd.Dir = r.projectDir

	var mu sync.Mutex
	var lastError, lastLine string
	lineCount := 0

	ok, err := r.stream(cmd, func(line string) {
		mu.Lock()
		lineCount++
		percent := buildPercent(lineCount)
		if isErrorLine(line) {
			lastError = line
		}
		if !isSeparatorLine(line) {
			lastLine = line
		}
		mu.Unlock()
		r.publisher.Publish(domain.NewFlashProgress(percent, domain.StageBuilding, truncate(line, 100)))
	})
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			logging.Logger.Error("PlatformIO executable not found", "path", r.pioPath)
			return false, fmt.Sprintf("PlatformIO is not installed (%s not found in PATH)", r.pioPath)
		}
		logging.Logger.Error("Failed to start build", "error", err)
		return false, fmt.Sprintf("failed to start build: %v", err)
	}

	if ok {
		logging.Logger.Info("Firmware build succeeded", "env", envName)
		return true, ""
	}

	mu.Lock()
	defer mu.Unlock()
	summary := lastError
	if summary == "" {
		summary = lastLine
	}
	if summary == "" {
		summary = "build failed with no output"
	}
	summary = truncate(summary, 200)
	logging.Logger.Error("Firmware build failed", "env", envName, "summary", summary)
	return false, summary
}
