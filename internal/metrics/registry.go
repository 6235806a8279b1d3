package metrics

import (
	"sync/atomic"
	"time"
)

const (
	// BucketCount is the number of latency histogram buckets.
	BucketCount   = 8
	cacheLineSize = 64
)

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Registry holds a fixed number of counters and histograms addressed by index.
type Registry struct {
	counters   []paddedCounter
	histograms []histogram
}

// NewRegistry allocates size counter and histogram slots.
func NewRegistry(size int) *Registry {
	if size < 0 {
		size = 0
	}
	return &Registry{
		counters:   make([]paddedCounter, size),
		histograms: make([]histogram, size),
	}
}

// Len returns the number of slots.
func (r *Registry) Len() int {
	return len(r.counters)
}

// Inc adds one to counter i. Out-of-range indexes are ignored.
func (r *Registry) Inc(i int) {
	if i < 0 || i >= len(r.counters) {
		return
	}
	atomic.AddUint64(&r.counters[i].value, 1)
}

// Value loads counter i.
func (r *Registry) Value(i int) uint64 {
	if i < 0 || i >= len(r.counters) {
		return 0
	}
	return atomic.LoadUint64(&r.counters[i].value)
}

// Observe records d in histogram i.
func (r *Registry) Observe(i int, d time.Duration) {
	if i < 0 || i >= len(r.histograms) {
		return
	}
	atomic.AddUint64(&r.histograms[i].buckets[BucketIndex(d)], 1)
}

// Buckets copies the (non-cumulative) bucket counts of histogram i.
func (r *Registry) Buckets(i int) []uint64 {
	out := make([]uint64, BucketCount)
	if i < 0 || i >= len(r.histograms) {
		return out
	}
	for b := range out {
		out[b] = atomic.LoadUint64(&r.histograms[i].buckets[b])
	}
	return out
}

// BucketIndex maps a duration to its histogram bucket.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
