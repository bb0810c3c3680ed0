package hostdev

import (
	"sync"
	"time"
)

// DeviceTimer is the one-shot timer backing e1000.Host's SetTimer/
// DeleteTimer pair. The reference 8254 PIT models ticks conceptually
// without ever firing anything; here the interrupt-mitigation window
// genuinely needs to expire in real time, so this wraps time.AfterFunc
// instead.
type DeviceTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	onFire   func()
}

// NewDeviceTimer constructs a timer that calls onFire when armed and
// allowed to expire.
func NewDeviceTimer(onFire func()) *DeviceTimer {
	return &DeviceTimer{onFire: onFire}
}

// Set arms (or re-arms) the timer to fire after d.
func (t *DeviceTimer) Set(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, t.onFire)
}

// Delete cancels any pending firing.
func (t *DeviceTimer) Delete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
