package hostalloc

import (
	"sync"
)

// Stats describes allocator activity.
type Stats struct {
	Allocs    int64
	Frees     int64
	LiveBytes int64
	PeakBytes int64
}

// Tracked wraps an Allocator and records allocation statistics.
type Tracked struct {
	inner Allocator

	mu    sync.Mutex
	stats Stats
}

// NewTracked wraps inner with allocation tracking.
func NewTracked(inner Allocator) *Tracked {
	return &Tracked{inner: inner}
}

// Name returns the wrapped allocator's name.
func (t *Tracked) Name() string {
	return t.inner.Name()
}

// Alloc allocates through the wrapped allocator.
func (t *Tracked) Alloc(size int) ([]byte, error) {
	buf, err := t.inner.Alloc(size)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Allocs++
	t.stats.LiveBytes += int64(len(buf))
	if t.stats.LiveBytes > t.stats.PeakBytes {
		t.stats.PeakBytes = t.stats.LiveBytes
	}
	return buf, nil
}

// Free frees through the wrapped allocator.
func (t *Tracked) Free(buf []byte) error {
	if err := t.inner.Free(buf); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Frees++
	t.stats.LiveBytes -= int64(len(buf))
	return nil
}

// Stats returns a snapshot of the counters.
func (t *Tracked) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
