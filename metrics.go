package xvfs

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a mounted
// filesystem.
type Metrics struct {
	ReadOps   atomic.Uint64
	WriteOps  atomic.Uint64
	CommitOps atomic.Uint64
	AllocOps  atomic.Uint64
	FreeOps   atomic.Uint64
	EvictOps  atomic.Uint64

	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	ReadErrors   atomic.Uint64
	WriteErrors  atomic.Uint64
	CommitErrors atomic.Uint64

	// CachedBlocks mirrors (*bcache.Cache).Len() at the time it was
	// last sampled — the fs façade updates it after every EndOp.
	CachedBlocks atomic.Uint32

	// CommittedBlocksTotal counts blocks written through the log
	// across every commit, not just the most recent one.
	CommittedBlocksTotal atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a read operation.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write operation.
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCommit records one log commit covering numBlocks installed blocks.
func (m *Metrics) RecordCommit(numBlocks uint32, latencyNs uint64, success bool) {
	m.CommitOps.Add(1)
	if success {
		m.CommittedBlocksTotal.Add(uint64(numBlocks))
	} else {
		m.CommitErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordAlloc records one successful bitmap block allocation.
func (m *Metrics) RecordAlloc() { m.AllocOps.Add(1) }

// RecordFree records one bitmap block free.
func (m *Metrics) RecordFree() { m.FreeOps.Add(1) }

// RecordEvict records one cache-block eviction.
func (m *Metrics) RecordEvict() { m.EvictOps.Add(1) }

// RecordCachedBlocks samples the current cache residency.
func (m *Metrics) RecordCachedBlocks(n int) { m.CachedBlocks.Store(uint32(n)) }

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the filesystem as unmounted.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	ReadOps   uint64
	WriteOps  uint64
	CommitOps uint64
	AllocOps  uint64
	FreeOps   uint64
	EvictOps  uint64

	ReadBytes  uint64
	WriteBytes uint64

	ReadErrors   uint64
	WriteErrors  uint64
	CommitErrors uint64

	CachedBlocks         uint32
	CommittedBlocksTotal uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps   uint64
	TotalBytes uint64
	ErrorRate  float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:              m.ReadOps.Load(),
		WriteOps:             m.WriteOps.Load(),
		CommitOps:            m.CommitOps.Load(),
		AllocOps:             m.AllocOps.Load(),
		FreeOps:              m.FreeOps.Load(),
		EvictOps:             m.EvictOps.Load(),
		ReadBytes:            m.ReadBytes.Load(),
		WriteBytes:           m.WriteBytes.Load(),
		ReadErrors:           m.ReadErrors.Load(),
		WriteErrors:          m.WriteErrors.Load(),
		CommitErrors:         m.CommitErrors.Load(),
		CachedBlocks:         m.CachedBlocks.Load(),
		CommittedBlocksTotal: m.CommittedBlocksTotal.Load(),
	}

	snap.TotalOps = snap.ReadOps + snap.WriteOps + snap.CommitOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	totalErrors := snap.ReadErrors + snap.WriteErrors + snap.CommitErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters. Useful for testing.
func (m *Metrics) Reset() {
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.CommitOps.Store(0)
	m.AllocOps.Store(0)
	m.FreeOps.Store(0)
	m.EvictOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.CommitErrors.Store(0)
	m.CachedBlocks.Store(0)
	m.CommittedBlocksTotal.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection for a mounted
// filesystem.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveCommit(numBlocks uint32, latencyNs uint64, success bool)
	ObserveCachedBlocks(n int)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)   {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveCommit(uint32, uint64, bool) {}
func (NoOpObserver) ObserveCachedBlocks(int)            {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveCommit(numBlocks uint32, latencyNs uint64, success bool) {
	o.metrics.RecordCommit(numBlocks, latencyNs, success)
}

func (o *MetricsObserver) ObserveCachedBlocks(n int) {
	o.metrics.RecordCachedBlocks(n)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
