// Package pio supervises the PlatformIO toolchain as a subprocess,
// streaming its output into progress events.
package pio

import (
	"bufio"
	"io"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"flashhunt/internal/logging"
	"flashhunt/internal/ports"
)

// Runner invokes the PlatformIO executable inside the firmware project
// directory. It implements ports.FirmwareBuilder and
// ports.FirmwareFlasher.
type Runner struct {
	pioPath    string
	projectDir string
	publisher  ports.EventPublisher
}

// Compile-time interface verification
var (
	_ ports.FirmwareBuilder = (*Runner)(nil)
	_ ports.FirmwareFlasher = (*Runner)(nil)
)

// NewRunner creates a Runner for the given tool path and project directory
func NewRunner(pioPath, projectDir string, publisher ports.EventPublisher) *Runner {
	return &Runner{
		pioPath:    pioPath,
		projectDir: projectDir,
		publisher:  publisher,
	}
}

// stream runs the command and feeds every stdout/stderr line to onLine.
// onLine may be called from two goroutines; callers synchronize.
// Returns (exit ok, start error).
func (r *Runner) stream(cmd *exec.Cmd, onLine func(line string)) (bool, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, err
	}

	if err := cmd.Start(); err != nil {
		return false, err
	}

	var g errgroup.Group
	scan := func(rd io.Reader) func() error {
		return func() error {
			scanner := bufio.NewScanner(rd)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				onLine(scanner.Text())
			}
			return scanner.Err()
		}
	}
	g.Go(scan(stdout))
	g.Go(scan(stderr))

	if err := g.Wait(); err != nil {
		logging.Logger.Warn("Error reading tool output", "error", err)
	}

	if err := cmd.Wait(); err != nil {
		return false, nil
	}
	return true, nil
}
