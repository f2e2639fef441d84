package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"flashhunt/internal/domain"
	"flashhunt/internal/services"
)

// FlashCmd builds firmware and flashes the first qualifying device
type FlashCmd struct {
	Config           string `help:"Build config" default:"dev" enum:"dev,prod,battery_test"`
	Port             string `help:"Exact serial port to wait for (default: any USB-serial port)"`
	DeviceID         string `help:"Hunt a network device by discovery id and flash it OTA"`
	TimeoutMinutes   int    `help:"Give up hunting after this many minutes (0 = wait forever)"`
	SleepIntervalSec int    `help:"Sleep interval to announce after a successful flash (0 = none)"`
}

// Run executes the flash command
func (f *FlashCmd) Run(cli *CLI) error {
	orchestrator := cli.Container.Orchestrator

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	params := services.QueueFlashParams{
		BuildConfig: domain.BuildConfig(f.Config),
	}
	if f.Port != "" {
		params.TargetPort = &f.Port
	}
	if f.DeviceID != "" {
		params.TargetDeviceID = &f.DeviceID
	}
	if f.TimeoutMinutes > 0 {
		params.TimeoutMinutes = &f.TimeoutMinutes
	}
	if f.SleepIntervalSec > 0 {
		params.SleepIntervalSec = &f.SleepIntervalSec
	}

	if err := orchestrator.QueueFlash(ctx, params); err != nil {
		if errors.Is(err, domain.ErrFlashCancelled) {
			return nil
		}
		return err
	}

	// The orchestrator hunts in the background; wait for the session to
	// resolve (flash, timeout, or Ctrl-C).
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if orchestrator.CancelQueuedFlash() {
				fmt.Fprintln(os.Stderr, "Cancelled")
			}
			// Let an in-flight upload finish rather than interrupting a
			// half-written firmware image
			for orchestrator.FlashInProgress() {
				time.Sleep(200 * time.Millisecond)
			}
			return nil
		case <-ticker.C:
			if orchestrator.GetQueueStatus() == nil && !orchestrator.FlashInProgress() {
				return nil
			}
		}
	}
}
