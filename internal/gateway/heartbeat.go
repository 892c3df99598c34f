package gateway

import (
	"math/rand/v2"
	"time"
)

// HeartbeatMonitor owns the heartbeat timer and the ack flag for one
// connection. It never sends anything itself: the manager's event loop
// waits on C() and calls Beat before writing the heartbeat frame, so the
// sequence applied by the loop is always the one that gets sent.
type HeartbeatMonitor struct {
	interval   time.Duration
	ackPending bool
	timer      *time.Timer
	scheduled  time.Duration // delay used for the currently armed timer

	lastSent time.Time
	latency  time.Duration

	jitter func(time.Duration) time.Duration
}

// NewHeartbeatMonitor creates a stopped monitor.
func NewHeartbeatMonitor() *HeartbeatMonitor {
	return &HeartbeatMonitor{jitter: uniformJitter}
}

// uniformJitter returns a delay drawn uniformly from [0, d).
func uniformJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}

// Start arms the first heartbeat at a random point within the interval.
// Any previous timer is cancelled first.
func (h *HeartbeatMonitor) Start(interval time.Duration) {
	h.Stop()
	h.interval = interval
	h.arm(h.jitter(interval))
}

func (h *HeartbeatMonitor) arm(d time.Duration) {
	h.scheduled = d
	if h.timer == nil {
		h.timer = time.NewTimer(d)
		return
	}
	h.timer.Reset(d)
}

// C returns the timer channel. A stopped monitor returns nil, which blocks
// forever in a select.
func (h *HeartbeatMonitor) C() <-chan time.Time {
	if h.timer == nil {
		return nil
	}
	return h.timer.C
}

// Beat is called when the timer fires. If the previous heartbeat was never
// acknowledged it returns ErrHeartbeatMissed and leaves the timer disarmed,
// so a dead connection is reported once. Otherwise it marks a heartbeat
// outstanding and re-arms the timer for one interval.
func (h *HeartbeatMonitor) Beat(now time.Time) error {
	if h.ackPending {
		return ErrHeartbeatMissed
	}
	h.ackPending = true
	h.lastSent = now
	h.arm(h.interval)
	return nil
}

// BeatNow records a heartbeat requested by the server. It does not check
// the ack flag and restarts the interval.
func (h *HeartbeatMonitor) BeatNow(now time.Time) {
	h.ackPending = true
	h.lastSent = now
	if h.interval > 0 {
		h.arm(h.interval)
	}
}

// Ack clears the outstanding heartbeat. Duplicate acks are harmless.
func (h *HeartbeatMonitor) Ack(now time.Time) {
	if h.ackPending && !h.lastSent.IsZero() {
		h.latency = now.Sub(h.lastSent)
	}
	h.ackPending = false
}

// Stop cancels the timer and resets the ack state to "no heartbeat
// outstanding".
func (h *HeartbeatMonitor) Stop() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.ackPending = false
	h.scheduled = 0
	h.lastSent = time.Time{}
}

// Running reports whether a timer is armed.
func (h *HeartbeatMonitor) Running() bool { return h.timer != nil }

// AckPending reports whether a heartbeat is awaiting its ack.
func (h *HeartbeatMonitor) AckPending() bool { return h.ackPending }

// Interval returns the interval from the last Hello.
func (h *HeartbeatMonitor) Interval() time.Duration { return h.interval }

// Scheduled returns the delay of the currently armed timer.
func (h *HeartbeatMonitor) Scheduled() time.Duration { return h.scheduled }

// Latency returns the round trip of the last acknowledged heartbeat.
func (h *HeartbeatMonitor) Latency() time.Duration { return h.latency }
