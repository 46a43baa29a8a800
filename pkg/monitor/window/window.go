// Package window maintains sliding time windows of behaviour events per
// (subject, event type) pair and serves aggregate snapshots to rule
// evaluation.
package window

import (
	"sync"
	"time"
)

// Record is the slice of an ingested event the aggregator keeps: the
// timestamp plus the numeric attributes rules can aggregate over.
type Record struct {
	Timestamp  time.Time
	Confidence float64
	Attrs      map[string]float64
}

type key struct {
	subjectID string
	eventType string
}

type series struct {
	// records are kept sorted by timestamp ascending. Out-of-order
	// arrivals within the retained horizon are inserted in place.
	records   []Record
	createdAt time.Time
}

// Aggregator holds the windows. maxAge bounds how far back any rule can
// look; maxPerKey caps memory per series regardless of age.
type Aggregator struct {
	mu        sync.RWMutex
	series    map[key]*series
	maxAge    time.Duration
	maxPerKey int
}

const (
	defaultMaxAge    = time.Hour
	defaultMaxPerKey = 10000
)

type Option func(*Aggregator)

func WithMaxAge(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.maxAge = d
		}
	}
}

func WithMaxPerKey(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxPerKey = n
		}
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		series:    make(map[key]*series),
		maxAge:    defaultMaxAge,
		maxPerKey: defaultMaxPerKey,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append adds a record to the (subject, type) series, keeping order and
// pruning expired entries as it goes.
func (a *Aggregator) Append(subjectID, eventType string, r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := key{subjectID: subjectID, eventType: eventType}
	s, ok := a.series[k]
	if !ok {
		s = &series{createdAt: time.Now()}
		a.series[k] = s
	}

	n := len(s.records)
	if n == 0 || !r.Timestamp.Before(s.records[n-1].Timestamp) {
		s.records = append(s.records, r)
	} else {
		// Out-of-order arrival: insert at the right place.
		i := n
		for i > 0 && s.records[i-1].Timestamp.After(r.Timestamp) {
			i--
		}
		s.records = append(s.records, Record{})
		copy(s.records[i+1:], s.records[i:])
		s.records[i] = r
	}

	s.prune(r.Timestamp, a.maxAge, a.maxPerKey)
}

// Touch ensures a series exists for the pair so idle tracking has a
// reference point even before the first event arrives.
func (a *Aggregator) Touch(subjectID, eventType string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := key{subjectID: subjectID, eventType: eventType}
	if _, ok := a.series[k]; !ok {
		a.series[k] = &series{createdAt: time.Now()}
	}
}

// Snapshot returns the aggregates over the given window ending at now.
func (a *Aggregator) Snapshot(subjectID, eventType string, window time.Duration, now time.Time) *Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := &Snapshot{now: now}

	k := key{subjectID: subjectID, eventType: eventType}
	s, ok := a.series[k]
	if !ok {
		return snap
	}

	snap.known = true
	snap.sinceRef = s.createdAt

	cutoff := now.Add(-window)
	for _, r := range s.records {
		if r.Timestamp.After(now) {
			break
		}
		if !r.Timestamp.Before(cutoff) {
			snap.records = append(snap.records, r)
		}
		// Idle is measured against the newest record regardless of
		// whether it falls inside the window.
		if r.Timestamp.After(snap.sinceRef) {
			snap.sinceRef = r.Timestamp
		}
	}

	return snap
}

// Sweep drops expired records across all series, and empty series that
// have been silent past the horizon. Called periodically by the engine.
func (a *Aggregator) Sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, s := range a.series {
		s.prune(now, a.maxAge, a.maxPerKey)
		if len(s.records) == 0 && now.Sub(s.createdAt) > 2*a.maxAge {
			delete(a.series, k)
		}
	}
}

// DropSubject removes all windows for a subject, used when the subject
// is deleted from the registry.
func (a *Aggregator) DropSubject(subjectID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k := range a.series {
		if k.subjectID == subjectID {
			delete(a.series, k)
		}
	}
}

// Len reports the number of retained records for the pair.
func (a *Aggregator) Len(subjectID, eventType string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if s, ok := a.series[key{subjectID: subjectID, eventType: eventType}]; ok {
		return len(s.records)
	}
	return 0
}

func (s *series) prune(now time.Time, maxAge time.Duration, maxPerKey int) {
	cutoff := now.Add(-maxAge)
	i := 0
	for i < len(s.records) && s.records[i].Timestamp.Before(cutoff) {
		// The reference point for idle tracking moves forward as old
		// records fall off.
		if s.records[i].Timestamp.After(s.createdAt) {
			s.createdAt = s.records[i].Timestamp
		}
		i++
	}
	if i > 0 {
		s.records = append(s.records[:0], s.records[i:]...)
	}
	if len(s.records) > maxPerKey {
		drop := len(s.records) - maxPerKey
		s.records = append(s.records[:0], s.records[drop:]...)
	}
}
