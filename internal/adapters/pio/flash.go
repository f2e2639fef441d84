package pio

import (
	"context"
	"os/exec"

	"flashhunt/internal/domain"
	"flashhunt/internal/logging"
)

// Flash uploads the built firmware over a local serial port
func (r *Runner) Flash(ctx context.Context, target, envName string) bool {
	return r.upload(ctx, target, envName, domain.StageWriting)
}

// UploadOTA uploads the built firmware to a network device
func (r *Runner) UploadOTA(ctx context.Context, ip, envName string) bool {
	return r.upload(ctx, ip, envName, domain.StageOTAUpload)
}

// upload supervises "pio run -t upload" against the given upload port
// (a device path for USB, an IP address for OTA). Success is exit
// code zero.
func (r *Runner) upload(ctx context.Context, target, envName, stage string) bool {
	logging.Logger.Info("Starting firmware upload", "target", target, "env", envName, "stage", stage)

	cmd := exec.CommandContext(ctx, r.pioPath, "run", "-e", envName, "-t", "upload", "--upload-port", target)
	cmd.Dir = r.projectDir

	ok, err := r.stream(cmd, func(line string) {
		r.publisher.Publish(domain.NewFlashProgress(uploadPercent(line), stage, truncate(line, 100)))
	})
	if err != nil {
		logging.Logger.Error("Failed to start upload", "error", err, "target", target)
		return false
	}

	if ok {
		logging.Logger.Info("Firmware upload succeeded", "target", target)
	} else {
		logging.Logger.Error("Firmware upload failed", "target", target)
	}
	return ok
}
