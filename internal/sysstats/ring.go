package sysstats

import (
	"sync"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// sampleRing is a fixed-capacity ring buffer of stats samples. When full, the
// oldest sample is evicted. Samples are treated as immutable once pushed.
type sampleRing struct {
	mu    sync.RWMutex
	buf   []models.StatsSample
	head  int // index of the oldest sample
	count int
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &sampleRing{buf: make([]models.StatsSample, capacity)}
}

func (r *sampleRing) push(s models.StatsSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// resize changes the ring capacity, keeping the newest samples that fit.
func (r *sampleRing) resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if capacity == len(r.buf) {
		return
	}
	keep := r.count
	if keep > capacity {
		keep = capacity
	}
	buf := make([]models.StatsSample, capacity)
	for i := 0; i < keep; i++ {
		buf[keep-1-i] = r.buf[(r.head+r.count-1-i)%len(r.buf)]
	}
	r.buf = buf
	r.head = 0
	r.count = keep
}

// latest returns the newest sample, or false when the ring is empty.
func (r *sampleRing) latest() (models.StatsSample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return models.StatsSample{}, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

// snapshot returns all samples oldest-first.
func (r *sampleRing) snapshot() []models.StatsSample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.StatsSample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *sampleRing) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *sampleRing) capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buf)
}
