package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{"pending to building", StatusPending, StatusBuilding, true},
		{"building to hunting", StatusBuilding, StatusHunting, true},
		{"building to failed", StatusBuilding, StatusFailed, true},
		{"building to cancelled", StatusBuilding, StatusCancelled, true},
		{"hunting to flashing", StatusHunting, StatusFlashing, true},
		{"hunting to cancelled", StatusHunting, StatusCancelled, true},
		{"hunting to expired", StatusHunting, StatusExpired, true},
		{"flashing to completed", StatusFlashing, StatusCompleted, true},
		{"flashing to failed", StatusFlashing, StatusFailed, true},
		{"building skips to flashing", StatusBuilding, StatusFlashing, false},
		{"pending skips to hunting", StatusPending, StatusHunting, false},
		{"hunting back to building", StatusHunting, StatusBuilding, false},
		{"flashing back to hunting", StatusFlashing, StatusHunting, false},
		{"completed is terminal", StatusCompleted, StatusBuilding, false},
		{"cancelled is terminal", StatusCancelled, StatusHunting, false},
		{"expired is terminal", StatusExpired, StatusFlashing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_RejectsInvalidMove(t *testing.T) {
	s := NewFlashSession(BuildDev, "dev", nil, nil, nil, nil, time.Now())
	require.Equal(t, StatusPending, s.Status)

	err := s.Transition(StatusFlashing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPending, s.Status, "failed transition must not change status")

	require.NoError(t, s.Transition(StatusBuilding))
	require.NoError(t, s.Transition(StatusHunting))
	require.NoError(t, s.Transition(StatusFlashing))
	require.NoError(t, s.Transition(StatusCompleted))
	assert.True(t, s.Status.IsTerminal())
}

func TestNewFlashSession_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no timeout means no deadline", func(t *testing.T) {
		s := NewFlashSession(BuildDev, "dev", nil, nil, nil, nil, now)
		assert.Nil(t, s.ExpiresAt)
		assert.Nil(t, s.TimeRemaining(now.Add(24*time.Hour)))
		assert.False(t, s.IsExpired(now.Add(24*time.Hour)))
	})

	t.Run("timeout sets deadline", func(t *testing.T) {
		timeout := 15
		s := NewFlashSession(BuildDev, "dev", nil, nil, &timeout, nil, now)
		require.NotNil(t, s.ExpiresAt)
		assert.Equal(t, now.Add(15*time.Minute), *s.ExpiresAt)

		remaining := s.TimeRemaining(now.Add(5 * time.Minute))
		require.NotNil(t, remaining)
		assert.Equal(t, 600, *remaining)

		assert.False(t, s.IsExpired(now.Add(14*time.Minute)))
		assert.True(t, s.IsExpired(now.Add(16*time.Minute)))
	})

	t.Run("time remaining never negative", func(t *testing.T) {
		timeout := 1
		s := NewFlashSession(BuildDev, "dev", nil, nil, &timeout, nil, now)
		remaining := s.TimeRemaining(now.Add(time.Hour))
		require.NotNil(t, remaining)
		assert.Equal(t, 0, *remaining)
	})
}

func TestPortMatcher_ExactMode(t *testing.T) {
	port := "COM7"
	s := NewFlashSession(BuildProd, "prod", &port, nil, nil, nil, time.Now())

	match := s.PortMatcher()
	assert.True(t, match("COM7"))
	assert.False(t, match("COM8"))
	assert.False(t, match("/dev/ttyUSB0"))
}

func TestLooksLikeUSBSerial(t *testing.T) {
	tests := []struct {
		port     string
		expected bool
	}{
		{"/dev/ttyUSB0", true},
		{"/dev/ttyACM1", true},
		{"/dev/cu.usbserial-0001", true},
		{"/dev/cu.usbmodem14101", true},
		{"/dev/cu.wchusbserial1420", true},
		{"/dev/cu.SLAB_USBtoUART", true},
		{"COM7", true},
		{"com12", true},
		{"/dev/ttyS0", false},
		{"/dev/tty.Bluetooth-Incoming-Port", false},
		{"/dev/ttyAMA0", false},
	}

	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			assert.Equal(t, tt.expected, LooksLikeUSBSerial(tt.port))
		})
	}
}

func TestSnapshot_ReflectsSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	timeout := 5
	sleep := 600
	device := "room-node-7"
	s := NewFlashSession(BuildDev, "dev", nil, &device, &timeout, &sleep, now)
	require.NoError(t, s.Transition(StatusBuilding))
	s.FirmwareBuilt = true

	snap := s.Snapshot(now.Add(time.Minute))
	assert.Equal(t, BuildDev, snap.BuildConfig)
	assert.Nil(t, snap.TargetPort)
	require.NotNil(t, snap.TargetDeviceID)
	assert.Equal(t, "room-node-7", *snap.TargetDeviceID)
	assert.True(t, snap.FirmwareBuilt)
	assert.Equal(t, StatusBuilding, snap.Status)
	assert.False(t, snap.IsExpired)
	require.NotNil(t, snap.TimeRemaining)
	assert.Equal(t, 240, *snap.TimeRemaining)
	require.NotNil(t, snap.SleepIntervalSec)
	assert.Equal(t, 600, *snap.SleepIntervalSec)
}

func TestBuildConfig_Valid(t *testing.T) {
	assert.True(t, BuildDev.Valid())
	assert.True(t, BuildProd.Valid())
	assert.True(t, BuildBatteryTest.Valid())
	assert.False(t, BuildConfig("release").Valid())
	assert.False(t, BuildConfig("").Valid())
}
