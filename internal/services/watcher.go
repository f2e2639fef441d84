package services

import (
	"sync"
	"time"

	"flashhunt/internal/domain"
	"flashhunt/internal/logging"
	"flashhunt/internal/ports"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	enumerateBackoff    = 2 * time.Second
	stopJoinTimeout     = 2 * time.Second
)

// PortWatcher polls serial port enumeration on its own goroutine and
// reports the first newly appeared qualifying port. It never touches
// orchestrator state: detection and expiry are delivered through the
// Detected/Expired channels and handled on the orchestrator side.
type PortWatcher struct {
	enumerator   ports.PortEnumerator
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	detected chan string
	expired  chan struct{}
}

// NewPortWatcher creates a watcher polling the given enumerator
func NewPortWatcher(enumerator ports.PortEnumerator) *PortWatcher {
	return &PortWatcher{
		enumerator:   enumerator,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// SetPollInterval overrides the enumeration poll interval. Takes
// effect on the next Start.
func (w *PortWatcher) SetPollInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d > 0 {
		w.pollInterval = d
	}
}

// Start captures the baseline snapshot and begins polling. A second
// Start while running is a no-op. The baseline is taken before Start
// returns: a port appearing any time after Start counts as new.
func (w *PortWatcher) Start(match domain.MatchFunc, expiresAt *time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		logging.Logger.Warn("Port watcher already running, ignoring Start")
		return
	}

	baseline, err := w.snapshot()
	if err != nil {
		logging.Logger.Warn("Initial port enumeration failed, starting with empty baseline", "error", err)
		baseline = map[string]struct{}{}
	}

	w.running = true
	w.stopped = false
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.detected = make(chan string, 1)
	w.expired = make(chan struct{}, 1)

	go w.watch(match, expiresAt, baseline, w.pollInterval, w.stopCh, w.doneCh, w.detected, w.expired)
}

// Stop halts polling and joins the worker with a bounded wait.
// Idempotent; safe to call when the watcher never started.
func (w *PortWatcher) Stop() {
	w.mu.Lock()
	if w.stopCh == nil || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(stopJoinTimeout):
		logging.Logger.Warn("Timed out waiting for port watcher to stop")
	}
}

// IsRunning reports whether the polling goroutine is live
func (w *PortWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Detected delivers the first qualifying port, at most once per Start
func (w *PortWatcher) Detected() <-chan string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detected
}

// Expired signals that the hunt deadline passed, at most once per Start
func (w *PortWatcher) Expired() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

// watch is the polling loop. It owns no shared state beyond its
// channels; match criteria, expiry and baseline are captured at Start
// time.
func (w *PortWatcher) watch(match domain.MatchFunc, expiresAt *time.Time, baseline map[string]struct{}, pollInterval time.Duration, stopCh chan struct{}, doneCh chan struct{}, detected chan string, expired chan struct{}) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(doneCh)
	}()

	logging.Logger.Info("Port watcher started", "baseline_ports", len(baseline))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		// Expiry wins over detection on the same tick
		if expiresAt != nil && w.now().After(*expiresAt) {
			logging.Logger.Info("Hunt deadline passed, signalling expiry")
			expired <- struct{}{}
			return
		}

		current, err := w.snapshot()
		if err != nil {
			logging.Logger.Warn("Port enumeration failed, backing off", "error", err)
			select {
			case <-stopCh:
				return
			case <-time.After(enumerateBackoff):
			}
			continue
		}

		for port := range current {
			if _, seen := baseline[port]; seen {
				continue
			}
			logging.Logger.Debug("New port appeared", "port", port)
			if match(port) {
				logging.Logger.Info("Qualifying port detected", "port", port)
				detected <- port
				return
			}
		}

		// Advancing the baseline every tick keeps already-seen ports
		// from re-matching and naturally tracks removals.
		baseline = current
	}
}

func (w *PortWatcher) snapshot() (map[string]struct{}, error) {
	names, err := w.enumerator.ListPorts()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}
