package cmd

import (
	"os"
	"time"

	"flashhunt/internal/adapters/events"
	"flashhunt/internal/adapters/pio"
	"flashhunt/internal/adapters/serialport"
	"flashhunt/internal/adapters/storage"
	"flashhunt/internal/config"
	"flashhunt/internal/logging"
	"flashhunt/internal/ports"
	"flashhunt/internal/services"
)

// Container holds all dependencies for the application
type Container struct {
	Enumerator   *serialport.Enumerator
	History      ports.HistoryRepository
	Orchestrator *services.Orchestrator
	Settings     *config.Settings
}

// NewContainer creates a new Container with all dependencies wired.
// Events go to stdout as JSON lines, standing in for the pub/sub
// transport of a hosting process.
func NewContainer(settings *config.Settings) (*Container, error) {
	if settings == nil {
		settings = &config.Settings{}
	}

	history, err := storage.NewSQLiteRepository(settings.GetDBPath())
	if err != nil {
		return nil, err
	}

	firmwareDir := settings.FirmwareDir
	if firmwareDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			firmwareDir = cwd
		} else {
			firmwareDir = "."
		}
	}

	publisher := events.NewJSONLinePublisher(os.Stdout)
	runner := pio.NewRunner(settings.GetPioPath(), firmwareDir, publisher)
	enumerator := serialport.NewEnumerator()
	primer := serialport.NewPrimer(settings.GetBaud())
	watcher := services.NewPortWatcher(enumerator)
	if settings.PollIntervalMS != nil {
		watcher.SetPollInterval(time.Duration(*settings.PollIntervalMS) * time.Millisecond)
	}

	orchestrator := services.NewOrchestrator(runner, runner, primer, watcher, publisher, history)
	orchestrator.SetEnvOverrides(settings.Envs)
	if settings.SettleDelayMS != nil {
		orchestrator.SetSettleDelay(time.Duration(*settings.SettleDelayMS) * time.Millisecond)
	}

	logging.Logger.Debug("Container initialized",
		"firmware_dir", firmwareDir,
		"pio", settings.GetPioPath(),
		"db", settings.GetDBPath(),
	)

	return &Container{
		Enumerator:   enumerator,
		History:      history,
		Orchestrator: orchestrator,
		Settings:     settings,
	}, nil
}

// Close releases container resources
func (c *Container) Close() {
	if c.History != nil {
		if err := c.History.Close(); err != nil {
			logging.Logger.Warn("Failed to close history database", "error", err)
		}
	}
}
