package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashhunt/internal/domain"
)

// fakeEnumerator is a controllable ports.PortEnumerator
type fakeEnumerator struct {
	mu    sync.Mutex
	ports []string
	err   error
}

func (f *fakeEnumerator) ListPorts() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.ports...), nil
}

func (f *fakeEnumerator) setPorts(ports ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = ports
	f.err = nil
}

func newTestWatcher(enum *fakeEnumerator) *PortWatcher {
	w := NewPortWatcher(enum)
	w.pollInterval = 10 * time.Millisecond
	return w
}

func TestWatcher_DetectsNewQualifyingPort(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts("/dev/ttyS0")
	w := newTestWatcher(enum)

	w.Start(domain.LooksLikeUSBSerial, nil)
	defer w.Stop()

	enum.setPorts("/dev/ttyS0", "/dev/ttyUSB0")

	select {
	case port := <-w.Detected():
		assert.Equal(t, "/dev/ttyUSB0", port)
	case <-time.After(2 * time.Second):
		t.Fatal("expected detection of /dev/ttyUSB0")
	}

	assert.Eventually(t, func() bool { return !w.IsRunning() },
		time.Second, 10*time.Millisecond, "watcher stops after a match")
}

func TestWatcher_PortAppearingRightAfterStartIsDetected(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts("/dev/ttyS0")
	w := newTestWatcher(enum)

	// The baseline must be captured before Start returns; a port that
	// shows up immediately afterwards is new, never baseline.
	w.Start(domain.LooksLikeUSBSerial, nil)
	defer w.Stop()
	enum.setPorts("/dev/ttyS0", "/dev/ttyUSB0")

	select {
	case port := <-w.Detected():
		assert.Equal(t, "/dev/ttyUSB0", port)
	case <-time.After(2 * time.Second):
		t.Fatal("port visible since just after Start was never detected")
	}
}

func TestWatcher_BaselinePortsNeverMatch(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts("/dev/ttyUSB0")
	w := newTestWatcher(enum)

	w.Start(domain.LooksLikeUSBSerial, nil)
	defer w.Stop()

	assert.Never(t, func() bool {
		select {
		case <-w.Detected():
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond, "port present at Start must not be detected")
}

func TestWatcher_NonQualifyingPortIgnored(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts()
	w := newTestWatcher(enum)

	w.Start(domain.LooksLikeUSBSerial, nil)
	defer w.Stop()

	enum.setPorts("/dev/ttyS1")

	assert.Never(t, func() bool {
		select {
		case <-w.Detected():
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestWatcher_ExactMatchMode(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts()
	w := newTestWatcher(enum)

	target := "COM7"
	session := domain.NewFlashSession(domain.BuildProd, "prod", &target, nil, nil, nil, time.Now())
	w.Start(session.PortMatcher(), nil)
	defer w.Stop()

	enum.setPorts("COM8")

	assert.Never(t, func() bool {
		select {
		case <-w.Detected():
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond, "COM8 must not satisfy a COM7 target")

	enum.setPorts("COM8", "COM7")

	select {
	case port := <-w.Detected():
		assert.Equal(t, "COM7", port)
	case <-time.After(2 * time.Second):
		t.Fatal("expected detection of COM7")
	}
}

func TestWatcher_SignalsExpiry(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts()
	w := newTestWatcher(enum)

	expired := time.Now().Add(-time.Second)
	w.Start(domain.LooksLikeUSBSerial, &expired)

	select {
	case <-w.Expired():
	case <-time.After(2 * time.Second):
		t.Fatal("expected expiry signal")
	}

	assert.Eventually(t, func() bool { return !w.IsRunning() },
		time.Second, 10*time.Millisecond)
}

func TestWatcher_NoExpiryWithoutDeadline(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts()
	w := newTestWatcher(enum)

	w.Start(domain.LooksLikeUSBSerial, nil)
	defer w.Stop()

	assert.Never(t, func() bool {
		select {
		case <-w.Expired():
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	enum := &fakeEnumerator{}
	enum.setPorts()
	w := newTestWatcher(enum)

	w.Stop() // never started

	w.Start(domain.LooksLikeUSBSerial, nil)
	require.True(t, w.IsRunning())

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop() // second stop is a no-op
	assert.False(t, w.IsRunning())
}

func TestWatcher_RecoversFromInitialEnumerationError(t *testing.T) {
	enum := &fakeEnumerator{err: assert.AnError}
	w := newTestWatcher(enum)

	w.Start(domain.LooksLikeUSBSerial, nil)
	defer w.Stop()

	// Initial snapshot failed; once enumeration recovers, the new port
	// diffs against an empty baseline.
	enum.setPorts("/dev/ttyUSB0")

	select {
	case port := <-w.Detected():
		assert.Equal(t, "/dev/ttyUSB0", port)
	case <-time.After(5 * time.Second):
		t.Fatal("expected detection after enumeration recovered")
	}
}
