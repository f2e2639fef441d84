package domain

import (
	"regexp"
	"strings"
	"time"
)

// BuildConfig selects the firmware build environment
type BuildConfig string

const (
	BuildDev         BuildConfig = "dev"
	BuildProd        BuildConfig = "prod"
	BuildBatteryTest BuildConfig = "battery_test"
)

// Valid reports whether the build config is one of the known values
func (c BuildConfig) Valid() bool {
	switch c {
	case BuildDev, BuildProd, BuildBatteryTest:
		return true
	}
	return false
}

// SessionStatus represents the state of a flash session
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusBuilding  SessionStatus = "building"
	StatusHunting   SessionStatus = "hunting"
	StatusFlashing  SessionStatus = "flashing"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
	StatusExpired   SessionStatus = "expired"
)

// IsTerminal reports whether the status ends the session
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// validTransitions is the forward-only state machine. A cancel that
// lands during the synchronous build finalizes as building→cancelled;
// all other paths match the hunt lifecycle.
var validTransitions = map[SessionStatus][]SessionStatus{
	StatusPending:  {StatusBuilding},
	StatusBuilding: {StatusHunting, StatusFailed, StatusCancelled},
	StatusHunting:  {StatusFlashing, StatusCancelled, StatusExpired},
	StatusFlashing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from→to is a legal forward transition
func CanTransition(from, to SessionStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FlashSession is the single in-flight deployment entity. At most one
// exists process-wide; the orchestrator owns all mutation.
type FlashSession struct {
	BuildConfig      BuildConfig
	CreatedAt        time.Time
	EnvName          string
	ExpiresAt        *time.Time
	FirmwareBuilt    bool
	SleepIntervalSec *int
	Status           SessionStatus
	TargetDeviceID   *string
	TargetPort       *string
}

// NewFlashSession creates a pending session for the given build config.
// timeoutMinutes == nil means the hunt never expires.
func NewFlashSession(cfg BuildConfig, envName string, targetPort, targetDeviceID *string, timeoutMinutes, sleepIntervalSec *int, now time.Time) *FlashSession {
	s := &FlashSession{
		BuildConfig:      cfg,
		CreatedAt:        now,
		EnvName:          envName,
		SleepIntervalSec: sleepIntervalSec,
		Status:           StatusPending,
		TargetDeviceID:   targetDeviceID,
		TargetPort:       targetPort,
	}
	if timeoutMinutes != nil {
		expires := now.Add(time.Duration(*timeoutMinutes) * time.Minute)
		s.ExpiresAt = &expires
	}
	return s
}

// Transition advances the session status. Returns ErrInvalidTransition
// if the move is not part of the state machine.
func (s *FlashSession) Transition(to SessionStatus) error {
	if !CanTransition(s.Status, to) {
		return ErrInvalidTransition
	}
	s.Status = to
	return nil
}

// IsOTA reports whether the session hunts a network device instead of a serial port
func (s *FlashSession) IsOTA() bool {
	return s.TargetDeviceID != nil && *s.TargetDeviceID != ""
}

// IsExpired reports whether the hunt deadline has passed
func (s *FlashSession) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// TimeRemaining returns the seconds left until expiry, or nil when no
// deadline is set. Never negative.
func (s *FlashSession) TimeRemaining(now time.Time) *int {
	if s.ExpiresAt == nil {
		return nil
	}
	remaining := int(s.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// MatchFunc decides whether a newly appeared port qualifies for flashing
type MatchFunc func(port string) bool

// usbMarkers are substrings that distinguish USB-serial device
// enumeration from irrelevant virtual ports (onboard UARTs, bluetooth).
var usbMarkers = []string{
	"ttyusb",
	"ttyacm",
	"usbserial",
	"usbmodem",
	"wchusb",
	"slab_usbtouart",
}

var comPortPattern = regexp.MustCompile(`(?i)^com\d+$`)

// PortMatcher returns the match function for the session: exact match
// when a target port is set, the USB-serial heuristic otherwise.
func (s *FlashSession) PortMatcher() MatchFunc {
	if s.TargetPort != nil && *s.TargetPort != "" {
		target := *s.TargetPort
		return func(port string) bool { return port == target }
	}
	return LooksLikeUSBSerial
}

// LooksLikeUSBSerial is the heuristic qualification for ports when no
// explicit target is configured.
func LooksLikeUSBSerial(port string) bool {
	lower := strings.ToLower(port)
	for _, marker := range usbMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return comPortPattern.MatchString(port)
}

// QueueSnapshot is the serializable view of the session for status
// queries and queue-status events.
type QueueSnapshot struct {
	BuildConfig      BuildConfig   `json:"build_config"`
	TargetPort       *string       `json:"target_port"`
	TargetDeviceID   *string       `json:"target_device_id"`
	FirmwareBuilt    bool          `json:"firmware_built"`
	Status           SessionStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        *time.Time    `json:"expires_at"`
	TimeRemaining    *int          `json:"time_remaining"`
	IsExpired        bool          `json:"is_expired"`
	SleepIntervalSec *int          `json:"sleep_interval_sec"`
}

// Snapshot captures the session fields at the given instant
func (s *FlashSession) Snapshot(now time.Time) *QueueSnapshot {
	return &QueueSnapshot{
		BuildConfig:      s.BuildConfig,
		TargetPort:       s.TargetPort,
		TargetDeviceID:   s.TargetDeviceID,
		FirmwareBuilt:    s.FirmwareBuilt,
		Status:           s.Status,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		TimeRemaining:    s.TimeRemaining(now),
		IsExpired:        s.IsExpired(now),
		SleepIntervalSec: s.SleepIntervalSec,
	}
}
