package alert

import (
	"time"

	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
)

type Status string

const (
	StatusFiring       Status = "firing"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is one firing of a rule against a subject. Value carries the
// aggregate that crossed the trigger (confidence, count, idle seconds)
// so notifications can show what was observed, not just that something
// was.
type Alert struct {
	ID             string         `json:"id"`
	RuleID         string         `json:"rule_id"`
	RuleName       string         `json:"rule_name"`
	SubjectID      string         `json:"subject_id"`
	SubjectName    string         `json:"subject_name,omitempty"`
	EventType      string         `json:"event_type"`
	Severity       rule.Severity  `json:"severity"`
	Status         Status         `json:"status"`
	Message        string         `json:"message"`
	Value          float64        `json:"value"`
	Details        map[string]any `json:"details,omitempty"`
	TriggeredAt    time.Time      `json:"triggered_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

// Active reports whether the alert still needs attention.
func (a *Alert) Active() bool {
	return a.Status == StatusFiring || a.Status == StatusAcknowledged
}

type Filter struct {
	RuleID    string
	SubjectID string
	Status    Status
	Severity  rule.Severity
	Since     time.Time
	Limit     int
	Offset    int
}
