package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"flashhunt/internal/domain"
	"flashhunt/internal/logging"
	"flashhunt/internal/ports"
)

const (
	defaultSettleDelay      = 1 * time.Second
	defaultAnnounceInterval = 5 * time.Second
	historyWriteTimeout     = 5 * time.Second
)

// QueueFlashParams are the inputs to QueueFlash. TargetPort and
// TargetDeviceID are mutually exclusive intents; when both are set the
// session hunts the network device and the port is ignored.
type QueueFlashParams struct {
	BuildConfig      domain.BuildConfig
	SleepIntervalSec *int
	TargetDeviceID   *string
	TargetPort       *string
	TimeoutMinutes   *int
}

// Orchestrator coordinates one firmware deployment at a time: build,
// hunt for the device, flash, optional deferred configuration. The
// single session slot and the in-flight flag are the only shared
// mutable state; the mutex guards the synchronous surface while the
// per-session hunt goroutine performs every hunting-phase transition.
type Orchestrator struct {
	builder   ports.FirmwareBuilder
	flasher   ports.FirmwareFlasher
	history   ports.HistoryRepository // may be nil
	primer    ports.DevicePrimer
	publisher ports.EventPublisher
	watcher   *PortWatcher

	announceInterval time.Duration
	envOverrides     map[string]string
	now              func() time.Time
	settleDelay      time.Duration

	mu              sync.Mutex
	cancelCh        chan struct{}
	cancelRequested bool
	discoveredCh    chan string
	flashing        bool
	huntDone        chan struct{}
	session         *domain.FlashSession
}

// NewOrchestrator creates an Orchestrator with all collaborators
// injected. history may be nil to disable flash-history persistence.
func NewOrchestrator(
	builder ports.FirmwareBuilder,
	flasher ports.FirmwareFlasher,
	primer ports.DevicePrimer,
	watcher *PortWatcher,
	publisher ports.EventPublisher,
	history ports.HistoryRepository,
) *Orchestrator {
	return &Orchestrator{
		announceInterval: defaultAnnounceInterval,
		builder:          builder,
		flasher:          flasher,
		history:          history,
		now:              time.Now,
		primer:           primer,
		publisher:        publisher,
		settleDelay:      defaultSettleDelay,
		watcher:          watcher,
	}
}

// SetEnvOverrides maps build configs to PlatformIO environment names.
// Unmapped configs resolve to their own name.
func (o *Orchestrator) SetEnvOverrides(envs map[string]string) {
	o.envOverrides = envs
}

// SetSettleDelay overrides the pause between port detection and the
// first open, letting slow USB stacks finish enumerating.
func (o *Orchestrator) SetSettleDelay(d time.Duration) {
	if d >= 0 {
		o.settleDelay = d
	}
}

func (o *Orchestrator) resolveEnvName(cfg domain.BuildConfig) string {
	if env, found := o.envOverrides[string(cfg)]; found && env != "" {
		return env
	}
	return string(cfg)
}

// QueueFlash builds the firmware and arms the hunt. It runs the build
// synchronously in the calling goroutine and returns once hunting has
// started (or the build failed). A second call while a session is
// active fails with domain.ErrFlashAlreadyQueued.
func (o *Orchestrator) QueueFlash(ctx context.Context, params QueueFlashParams) error {
	if !params.BuildConfig.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidBuildConfig, params.BuildConfig)
	}

	envName := o.resolveEnvName(params.BuildConfig)

	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()
		return domain.ErrFlashAlreadyQueued
	}
	if o.flashing {
		o.mu.Unlock()
		return domain.ErrFlashInProgress
	}

	session := domain.NewFlashSession(
		params.BuildConfig, envName,
		params.TargetPort, params.TargetDeviceID,
		params.TimeoutMinutes, params.SleepIntervalSec,
		o.now(),
	)
	if session.IsOTA() && params.TargetPort != nil {
		logging.Logger.Warn("Both target port and device id set, hunting the network device", "device_id", *params.TargetDeviceID)
	}
	if err := session.Transition(domain.StatusBuilding); err != nil {
		o.mu.Unlock()
		return err
	}
	o.session = session
	o.cancelRequested = false
	snapshot := session.Snapshot(o.now())
	o.mu.Unlock()

	logging.Logger.Info("Flash queued", "build_config", params.BuildConfig, "env", envName)
	o.publisher.Publish(domain.NewFlashQueueStatus(domain.QueueBuilding,
		fmt.Sprintf("building firmware (%s)", envName), snapshot))

	ok, summary := o.builder.Build(ctx, envName)

	o.mu.Lock()
	if !ok {
		o.finalizeLocked(domain.StatusFailed, domain.QueueFailed, summary)
		o.mu.Unlock()
		return fmt.Errorf("build failed: %s", summary)
	}
	if o.cancelRequested {
		o.finalizeLocked(domain.StatusCancelled, domain.QueueCancelled, "flash cancelled during build")
		o.mu.Unlock()
		return domain.ErrFlashCancelled
	}

	session.FirmwareBuilt = true
	if err := session.Transition(domain.StatusHunting); err != nil {
		o.mu.Unlock()
		return err
	}

	// Published before the watcher is armed so no detection event can
	// ever precede the hunting announcement.
	o.publisher.Publish(domain.NewFlashQueueStatus(domain.QueueHunting,
		"firmware built, hunting for device", session.Snapshot(o.now())))

	o.cancelCh = make(chan struct{}, 1)
	o.huntDone = make(chan struct{})

	if session.IsOTA() {
		o.discoveredCh = make(chan string, 1)
		go o.huntOTA(ctx, o.cancelCh, o.discoveredCh, session.ExpiresAt, o.huntDone)
	} else {
		o.watcher.Start(session.PortMatcher(), session.ExpiresAt)
		go o.huntUSB(ctx, o.cancelCh, o.huntDone)
	}
	if session.ExpiresAt != nil {
		go o.announceTimeout(o.huntDone)
	}
	o.mu.Unlock()

	return nil
}

// CancelQueuedFlash aborts the session before flashing begins. Returns
// false when nothing is queued. A cancel during the build is latched
// and finalized when the build returns; once flashing has started the
// session is already cleared and there is nothing to cancel.
func (o *Orchestrator) CancelQueuedFlash() bool {
	o.mu.Lock()
	session := o.session
	if session == nil {
		o.mu.Unlock()
		return false
	}

	switch session.Status {
	case domain.StatusBuilding:
		o.cancelRequested = true
		o.mu.Unlock()
		logging.Logger.Info("Cancel requested during build, will take effect when the build returns")
		return true
	case domain.StatusHunting:
		cancelCh := o.cancelCh
		o.mu.Unlock()
		select {
		case cancelCh <- struct{}{}:
		default:
		}
		return true
	default:
		o.mu.Unlock()
		return false
	}
}

// GetQueueStatus returns a snapshot of the active session, or nil
func (o *Orchestrator) GetQueueStatus() *domain.QueueSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	return o.session.Snapshot(o.now())
}

// FlashInProgress reports whether an upload is currently running
func (o *Orchestrator) FlashInProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flashing
}

// OnDiscoveryDeviceFound is the inbound callback from the discovery
// collaborator, fired on every device sighting regardless of session
// state. It only forwards a matching sighting into the hunt goroutine.
func (o *Orchestrator) OnDiscoveryDeviceFound(deviceID, ipAddress string) {
	o.mu.Lock()
	session := o.session
	if session == nil || !session.IsOTA() || session.Status != domain.StatusHunting || *session.TargetDeviceID != deviceID {
		o.mu.Unlock()
		logging.Logger.Debug("Ignoring discovery sighting", "device_id", deviceID, "ip", ipAddress)
		return
	}
	discoveredCh := o.discoveredCh
	o.mu.Unlock()

	select {
	case discoveredCh <- ipAddress:
	default:
	}
}

// huntUSB waits for exactly one watcher signal (or a cancel) and
// performs the resulting transition. It is the home context for every
// hunting-phase mutation of a USB session.
func (o *Orchestrator) huntUSB(ctx context.Context, cancelCh chan struct{}, huntDone chan struct{}) {
	defer close(huntDone)

	select {
	case port := <-o.watcher.Detected():
		o.handleUSBDetected(ctx, port)
	case <-o.watcher.Expired():
		o.handleWatchExpired()
	case <-cancelCh:
		o.finalizeCancelled()
	case <-ctx.Done():
		o.finalizeCancelled()
	}
}

// huntOTA is the OTA counterpart: the discovery callback stands in for
// the watcher, and expiry is a plain timer since no watcher owns the
// deadline.
func (o *Orchestrator) huntOTA(ctx context.Context, cancelCh chan struct{}, discoveredCh chan string, expiresAt *time.Time, huntDone chan struct{}) {
	defer close(huntDone)

	var expiryC <-chan time.Time
	if expiresAt != nil {
		timer := time.NewTimer(expiresAt.Sub(o.now()))
		defer timer.Stop()
		expiryC = timer.C
	}

	select {
	case ip := <-discoveredCh:
		o.handleOTADetected(ctx, ip)
	case <-expiryC:
		o.handleWatchExpired()
	case <-cancelCh:
		o.finalizeCancelled()
	case <-ctx.Done():
		o.finalizeCancelled()
	}
}

// handleUSBDetected flashes over the detected port. The watcher is
// joined before the flashing transition so no stale detection can land
// after the slot is repurposed, and the session is cleared before the
// upload starts so a fresh QueueFlash cannot collide with it.
func (o *Orchestrator) handleUSBDetected(ctx context.Context, port string) {
	o.watcher.Stop()

	o.mu.Lock()
	session := o.session
	if session == nil || session.Status != domain.StatusHunting {
		o.mu.Unlock()
		logging.Logger.Info("Detection arrived after session ended, ignoring", "port", port)
		return
	}
	if err := session.Transition(domain.StatusFlashing); err != nil {
		o.mu.Unlock()
		return
	}
	snapshot := session.Snapshot(o.now())
	envName := session.EnvName
	sleepInterval := session.SleepIntervalSec
	record := o.recordFromSessionLocked(session)
	o.flashing = true
	o.session = nil
	o.mu.Unlock()

	o.publisher.Publish(domain.NewFlashQueueStatus(domain.QueueDeviceDetected,
		fmt.Sprintf("device detected on %s", port), snapshot))

	// Give the port a moment to finish enumerating before opening it
	time.Sleep(o.settleDelay)

	if err := o.primer.Prime(port); err != nil {
		// Best-effort: the device may not support the keep-awake command
		logging.Logger.Warn("Priming failed, flashing anyway", "port", port, "error", err)
	}

	// Cancellation ends with the hunt: a cancel (or Ctrl-C) arriving now
	// must not kill the upload and leave a half-written image.
	ok := o.flasher.Flash(context.WithoutCancel(ctx), port, envName)
	o.finishFlash(ok, fmt.Sprintf("firmware flashed to %s", port),
		fmt.Sprintf("flash failed on %s", port), sleepInterval, record)
}

// handleOTADetected uploads over the network to the discovered address
func (o *Orchestrator) handleOTADetected(ctx context.Context, ip string) {
	o.watcher.Stop()

	o.mu.Lock()
	session := o.session
	if session == nil || session.Status != domain.StatusHunting {
		o.mu.Unlock()
		logging.Logger.Info("Discovery arrived after session ended, ignoring", "ip", ip)
		return
	}
	if err := session.Transition(domain.StatusFlashing); err != nil {
		o.mu.Unlock()
		return
	}
	snapshot := session.Snapshot(o.now())
	envName := session.EnvName
	sleepInterval := session.SleepIntervalSec
	record := o.recordFromSessionLocked(session)
	o.flashing = true
	o.session = nil
	o.mu.Unlock()

	o.publisher.Publish(domain.NewFlashQueueStatus(domain.QueueFlashing,
		fmt.Sprintf("uploading OTA to %s", ip), snapshot))

	// Same rule as the serial path: the upload outlives any cancel signal
	ok := o.flasher.UploadOTA(context.WithoutCancel(ctx), ip, envName)
	o.finishFlash(ok, fmt.Sprintf("OTA upload to %s complete", ip),
		fmt.Sprintf("OTA upload to %s failed", ip), sleepInterval, record)
}

// finishFlash emits the completion event, the deferred configuration
// announcement and the history record for a flash that ran to the end.
func (o *Orchestrator) finishFlash(ok bool, successMsg, failureMsg string, sleepInterval *int, record ports.FlashRecord) {
	message := successMsg
	status := domain.StatusCompleted
	if !ok {
		message = failureMsg
		status = domain.StatusFailed
	}

	o.publisher.Publish(domain.NewFlashComplete(ok, message))

	if ok && sleepInterval != nil {
		o.publisher.Publish(domain.NewSleepIntervalPending(*sleepInterval,
			fmt.Sprintf("sleep interval of %ds will be applied when the device reconnects", *sleepInterval)))
	}

	record.Status = status
	record.Message = message
	record.FinishedAt = o.now()
	o.writeHistory(record)

	o.mu.Lock()
	o.flashing = false
	o.mu.Unlock()
}

// handleWatchExpired performs the authoritative expired transition.
// The announcer only ever announces; only this path expires a session.
func (o *Orchestrator) handleWatchExpired() {
	o.watcher.Stop()

	o.mu.Lock()
	session := o.session
	if session == nil || session.Status != domain.StatusHunting {
		o.mu.Unlock()
		return
	}
	o.finalizeLocked(domain.StatusExpired, domain.QueueExpired, "no device appeared before the timeout")
	o.mu.Unlock()
}

// finalizeCancelled resolves a cancel that reached the hunt goroutine
// first. A cancel that lost the race against detection no-ops behind
// the status guard.
func (o *Orchestrator) finalizeCancelled() {
	o.watcher.Stop()

	o.mu.Lock()
	session := o.session
	if session == nil || session.Status != domain.StatusHunting {
		o.mu.Unlock()
		return
	}
	o.finalizeLocked(domain.StatusCancelled, domain.QueueCancelled, "flash cancelled")
	o.mu.Unlock()
}

// finalizeLocked transitions the session to a terminal state, emits
// the single terminal queue-status event, records history and clears
// the slot. Callers hold the mutex.
func (o *Orchestrator) finalizeLocked(status domain.SessionStatus, queueStatus, message string) {
	session := o.session
	if err := session.Transition(status); err != nil {
		logging.Logger.Error("Refusing invalid terminal transition", "from", session.Status, "to", status, "error", err)
		return
	}
	snapshot := session.Snapshot(o.now())

	record := o.recordFromSessionLocked(session)
	record.Status = status
	record.Message = message
	record.FinishedAt = o.now()

	o.session = nil

	logging.Logger.Info("Session finished", "status", status, "message", message)
	o.publisher.Publish(domain.NewFlashQueueStatus(queueStatus, message, snapshot))
	o.writeHistory(record)
}

func (o *Orchestrator) recordFromSessionLocked(session *domain.FlashSession) ports.FlashRecord {
	record := ports.FlashRecord{
		ID:          uuid.New().String(),
		BuildConfig: session.BuildConfig,
		EnvName:     session.EnvName,
		CreatedAt:   session.CreatedAt,
	}
	if session.TargetPort != nil {
		record.TargetPort = *session.TargetPort
	}
	if session.TargetDeviceID != nil {
		record.TargetDeviceID = *session.TargetDeviceID
	}
	return record
}

// writeHistory persists a terminal outcome. Best-effort: a storage
// failure is logged and never surfaces to the session.
func (o *Orchestrator) writeHistory(record ports.FlashRecord) {
	if o.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := o.history.Add(ctx, record); err != nil {
		logging.Logger.Warn("Failed to record flash history", "error", err)
	}
}

// announceTimeout broadcasts the remaining hunt time every announce
// interval while the session stays in hunting.
func (o *Orchestrator) announceTimeout(huntDone chan struct{}) {
	ticker := time.NewTicker(o.announceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-huntDone:
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		session := o.session
		if session == nil || session.Status != domain.StatusHunting {
			o.mu.Unlock()
			return
		}
		snapshot := session.Snapshot(o.now())
		o.mu.Unlock()

		remaining := 0
		if snapshot.TimeRemaining != nil {
			remaining = *snapshot.TimeRemaining
		}
		o.publisher.Publish(domain.NewFlashQueueStatus(domain.QueueHunting,
			fmt.Sprintf("hunting for device, %ds remaining", remaining), snapshot))
	}
}
