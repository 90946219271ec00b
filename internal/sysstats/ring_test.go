package sysstats

import (
	"testing"
	"time"

	"github.com/servicedeck/servicedeck/pkg/models"
)

func sampleAt(sec int) models.StatsSample {
	return models.StatsSample{
		CPU:       models.CPUStats{UsagePercent: float64(sec)},
		Timestamp: time.Unix(int64(sec), 0),
	}
}

func TestRingEmpty(t *testing.T) {
	r := newSampleRing(10)

	if _, ok := r.latest(); ok {
		t.Error("latest() on empty ring should report false")
	}
	if got := r.snapshot(); len(got) != 0 {
		t.Errorf("snapshot() = %d samples, want 0", len(got))
	}
}

func TestRingFillAndOrder(t *testing.T) {
	r := newSampleRing(5)
	for i := 1; i <= 3; i++ {
		r.push(sampleAt(i))
	}

	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}
	snap := r.snapshot()
	for i, s := range snap {
		if s.CPU.UsagePercent != float64(i+1) {
			t.Errorf("snapshot[%d] = %v, want %d (oldest first)", i, s.CPU.UsagePercent, i+1)
		}
	}
	latest, ok := r.latest()
	if !ok || latest.CPU.UsagePercent != 3 {
		t.Errorf("latest = %v, want sample 3", latest.CPU.UsagePercent)
	}
}

// TestRingEviction pushes one past capacity and verifies the oldest sample
// is gone while order is preserved.
func TestRingEviction(t *testing.T) {
	r := newSampleRing(360)
	for i := 1; i <= 361; i++ {
		r.push(sampleAt(i))
	}

	if r.len() != 360 {
		t.Fatalf("len = %d, want capacity 360", r.len())
	}
	snap := r.snapshot()
	if snap[0].CPU.UsagePercent != 2 {
		t.Errorf("oldest = %v, want 2 (sample 1 evicted)", snap[0].CPU.UsagePercent)
	}
	if snap[len(snap)-1].CPU.UsagePercent != 361 {
		t.Errorf("newest = %v, want 361", snap[len(snap)-1].CPU.UsagePercent)
	}
	for i := 1; i < len(snap); i++ {
		if !snap[i].Timestamp.After(snap[i-1].Timestamp) {
			t.Fatalf("snapshot not strictly ordered at %d", i)
		}
	}
}

func TestRingWrapsRepeatedly(t *testing.T) {
	r := newSampleRing(4)
	for i := 1; i <= 11; i++ {
		r.push(sampleAt(i))
	}

	snap := r.snapshot()
	want := []float64{8, 9, 10, 11}
	for i, w := range want {
		if snap[i].CPU.UsagePercent != w {
			t.Errorf("snapshot[%d] = %v, want %v", i, snap[i].CPU.UsagePercent, w)
		}
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := newSampleRing(0)
	if r.capacity() != 1 {
		t.Errorf("capacity = %d, want clamped to 1", r.capacity())
	}
	r.push(sampleAt(1))
	r.push(sampleAt(2))
	latest, _ := r.latest()
	if latest.CPU.UsagePercent != 2 {
		t.Errorf("latest = %v, want 2", latest.CPU.UsagePercent)
	}
}

// TestRingResizeShrinkKeepsNewest verifies shrinking retains the newest
// samples in order.
func TestRingResizeShrinkKeepsNewest(t *testing.T) {
	r := newSampleRing(10)
	for i := 1; i <= 7; i++ {
		r.push(sampleAt(i))
	}

	r.resize(3)

	if r.capacity() != 3 {
		t.Fatalf("capacity = %d, want 3", r.capacity())
	}
	snap := r.snapshot()
	want := []float64{5, 6, 7}
	if len(snap) != len(want) {
		t.Fatalf("len = %d, want %d", len(snap), len(want))
	}
	for i, w := range want {
		if snap[i].CPU.UsagePercent != w {
			t.Errorf("snapshot[%d] = %v, want %v", i, snap[i].CPU.UsagePercent, w)
		}
	}
}

// TestRingResizeGrow verifies growing keeps everything and opens room for
// more samples before eviction resumes.
func TestRingResizeGrow(t *testing.T) {
	r := newSampleRing(3)
	for i := 1; i <= 5; i++ {
		r.push(sampleAt(i)) // ring holds 3, 4, 5
	}

	r.resize(5)

	snap := r.snapshot()
	want := []float64{3, 4, 5}
	if len(snap) != len(want) {
		t.Fatalf("len = %d, want %d", len(snap), len(want))
	}
	for i, w := range want {
		if snap[i].CPU.UsagePercent != w {
			t.Errorf("snapshot[%d] = %v, want %v", i, snap[i].CPU.UsagePercent, w)
		}
	}

	r.push(sampleAt(6))
	r.push(sampleAt(7))
	if r.len() != 5 {
		t.Errorf("len = %d, want 5 after growing", r.len())
	}
	latest, _ := r.latest()
	if latest.CPU.UsagePercent != 7 {
		t.Errorf("latest = %v, want 7", latest.CPU.UsagePercent)
	}
}

func TestRingResizeSameCapacityNoOp(t *testing.T) {
	r := newSampleRing(4)
	for i := 1; i <= 6; i++ {
		r.push(sampleAt(i))
	}

	r.resize(4)

	snap := r.snapshot()
	want := []float64{3, 4, 5, 6}
	for i, w := range want {
		if snap[i].CPU.UsagePercent != w {
			t.Errorf("snapshot[%d] = %v, want %v", i, snap[i].CPU.UsagePercent, w)
		}
	}
}

func TestRingSnapshotIsCopy(t *testing.T) {
	r := newSampleRing(3)
	r.push(sampleAt(1))

	snap := r.snapshot()
	snap[0].CPU.UsagePercent = 999

	latest, _ := r.latest()
	if latest.CPU.UsagePercent != 1 {
		t.Error("mutating a snapshot must not affect the ring")
	}
}
