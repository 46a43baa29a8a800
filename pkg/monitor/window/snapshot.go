package window

import (
	"math"
	"time"
)

// Snapshot is an immutable view of one series restricted to a window.
// It implements the environment trigger expressions evaluate against.
type Snapshot struct {
	records  []Record
	now      time.Time
	sinceRef time.Time
	known    bool
}

// Known reports whether the aggregator has ever seen (or been touched
// for) this subject/type pair.
func (s *Snapshot) Known() bool { return s.known }

// Count returns the number of events in the window.
func (s *Snapshot) Count() float64 { return float64(len(s.records)) }

// IdleSeconds returns the time since the newest event for the pair, or
// since tracking began when no event has arrived yet. Unknown pairs
// report zero so absence rules cannot fire on subjects that were never
// monitored.
func (s *Snapshot) IdleSeconds() float64 {
	if !s.known {
		return 0
	}
	idle := s.now.Sub(s.sinceRef).Seconds()
	if idle < 0 {
		return 0
	}
	return idle
}

// Aggregate computes fn over the named attribute for events in the
// window. The boolean is false when the window is empty or no event
// carries the attribute; "confidence" resolves to the record's
// confidence score.
func (s *Snapshot) Aggregate(fn, field string) (float64, bool) {
	var (
		sum   float64
		minV  = math.Inf(1)
		maxV  = math.Inf(-1)
		last  float64
		count int
	)

	for _, r := range s.records {
		v, ok := fieldValue(r, field)
		if !ok {
			continue
		}
		count++
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		last = v
	}

	if count == 0 {
		return 0, false
	}

	switch fn {
	case "sum":
		return sum, true
	case "avg":
		return sum / float64(count), true
	case "min":
		return minV, true
	case "max":
		return maxV, true
	case "last":
		return last, true
	default:
		return 0, false
	}
}

func fieldValue(r Record, field string) (float64, bool) {
	if field == "confidence" {
		return r.Confidence, true
	}
	v, ok := r.Attrs[field]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
