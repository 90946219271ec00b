package sysstats

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestSetSampleIntervalResizesHistory verifies a cadence change recomputes
// the ring capacity so the retained window stays at history_window.
func TestSetSampleIntervalResizesHistory(t *testing.T) {
	m := New()
	m.logger = zap.NewNop()
	m.cfg = DefaultConfig()
	m.ring = newSampleRing(ringCapacity(m.cfg.HistoryWindow, m.cfg.SampleInterval))

	if got := m.ring.capacity(); got != 360 {
		t.Fatalf("initial capacity = %d, want 360 (30m / 5s)", got)
	}

	// Samples pushed before the change must survive it.
	m.ring.push(sampleAt(1))
	m.ring.push(sampleAt(2))

	if err := m.SetSampleInterval(time.Second); err != nil {
		t.Fatalf("SetSampleInterval() error = %v", err)
	}
	if got := m.ring.capacity(); got != 1800 {
		t.Errorf("capacity = %d, want 1800 (30m / 1s)", got)
	}
	if latest, ok := m.ring.latest(); !ok || latest.CPU.UsagePercent != 2 {
		t.Errorf("latest = %v, want sample 2 carried over", latest.CPU.UsagePercent)
	}

	if err := m.SetSampleInterval(10 * time.Second); err != nil {
		t.Fatalf("SetSampleInterval() error = %v", err)
	}
	if got := m.ring.capacity(); got != 180 {
		t.Errorf("capacity = %d, want 180 (30m / 10s)", got)
	}

	if err := m.SetSampleInterval(500 * time.Millisecond); err == nil {
		t.Error("sub-second interval should be rejected")
	}
	if got := m.ring.capacity(); got != 180 {
		t.Errorf("capacity = %d, a rejected interval must not resize", got)
	}
}
