// Package event accepts behaviour observations, validates them against
// the subject registry and feeds the window aggregator.
package event

import (
	"strings"
	"time"
)

// Event is one behaviour observation about a subject: a detection, a
// zone transition, a reading. Attributes carry the numeric measurements
// rule triggers can aggregate over.
type Event struct {
	ID         string             `json:"id"`
	SubjectID  string             `json:"subject_id"`
	Type       string             `json:"type"`
	Timestamp  time.Time          `json:"timestamp"`
	Confidence float64            `json:"confidence"`
	Attributes map[string]float64 `json:"attributes,omitempty"`
	Tags       map[string]string  `json:"tags,omitempty"`
	ReceivedAt time.Time          `json:"received_at"`
}

type Filter struct {
	SubjectID string
	Type      string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// NormalizeType canonicalizes event type names so "Fall Detected" and
// "fall_detected" address the same window series.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.ReplaceAll(t, " ", "_")
}
