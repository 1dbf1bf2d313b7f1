// Package metrics records per-operation latency of calls to the analysis service.
package metrics

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"time"
)

// Operation names recorded by the transport client.
const (
	OpUpload        = "upload"
	OpPollJob       = "poll_job"
	OpFetchSimilar  = "fetch_similar"
	OpPatchMetadata = "patch_metadata"
	OpDeleteTag     = "delete_tag"
	OpGetRecord     = "get_record"
	OpListRecords   = "list_records"
	OpLogin         = "login"
	OpSignup        = "signup"
	OpGetProfile    = "get_profile"
	OpUpdateProfile = "update_profile"
	OpDownload      = "download"
)

// maxSamples is how many recent durations are kept per operation for percentiles.
const maxSamples = 256

// opStats aggregates calls of one operation.
type opStats struct {
	count   int64
	errors  int64
	total   time.Duration
	min     time.Duration
	max     time.Duration
	lastErr string

	// samples is a ring of the most recent durations.
	samples []time.Duration
	next    int
}

func (s *opStats) add(d time.Duration) {
	if len(s.samples) < maxSamples {
		s.samples = append(s.samples, d)
		return
	}
	s.samples[s.next] = d
	s.next = (s.next + 1) % maxSamples
}

// OperationSnapshot is the computed view of one operation.
type OperationSnapshot struct {
	Op          string
	Count       int64
	Errors      int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
	P50TimeMs   int64
	P95TimeMs   int64
	LastError   string
}

// Snapshot is the collected statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Operations    []OperationSnapshot
}

// Get returns the snapshot for a single operation.
func (s Snapshot) Get(op string) (OperationSnapshot, bool) {
	for _, o := range s.Operations {
		if o.Op == op {
			return o, true
		}
	}
	return OperationSnapshot{}, false
}

// Collector aggregates call timings. It is safe for concurrent use and a
// nil *Collector discards everything.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	ops     map[string]*opStats
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		started: time.Now(),
		ops:     make(map[string]*opStats),
	}
}

// RecordTiming records one call of op. Failed calls count as errors and
// still contribute to timing.
func (c *Collector) RecordTiming(op string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.ops[op]
	if !ok {
		s = &opStats{min: time.Duration(math.MaxInt64)}
		c.ops[op] = s
	}
	s.count++
	s.total += d
	s.min = min(s.min, d)
	s.max = max(s.max, d)
	s.add(d)
	if err != nil {
		s.errors++
		s.lastErr = err.Error()
	}
}

// Snapshot returns the current statistics ordered by operation name.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{UptimeSeconds: time.Since(c.started).Seconds()}
	for op, s := range c.ops {
		if s.count == 0 {
			continue
		}
		sorted := slices.Clone(s.samples)
		slices.Sort(sorted)
		snap.Operations = append(snap.Operations, OperationSnapshot{
			Op:          op,
			Count:       s.count,
			Errors:      s.errors,
			TotalTimeMs: s.total.Milliseconds(),
			AvgTimeMs:   float64(s.total.Milliseconds()) / float64(s.count),
			MinTimeMs:   s.min.Milliseconds(),
			MaxTimeMs:   s.max.Milliseconds(),
			P50TimeMs:   percentile(sorted, 0.50).Milliseconds(),
			P95TimeMs:   percentile(sorted, 0.95).Milliseconds(),
			LastError:   s.lastErr,
		})
	}
	slices.SortFunc(snap.Operations, func(a, b OperationSnapshot) int {
		return cmp.Compare(a.Op, b.Op)
	})
	return snap
}

// percentile returns the nearest-rank percentile of sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
