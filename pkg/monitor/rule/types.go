package rule

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rule describes one trigger: which events it watches, the window to
// aggregate over, the expression that decides firing, and how the
// resulting alert is classified and routed.
//
// Window and Cooldown are duration strings ("30s", "5m") so rules read
// the same in YAML files and API payloads.
type Rule struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	EventType   string   `json:"event_type" yaml:"eventType"`
	SubjectType string   `json:"subject_type,omitempty" yaml:"subjectType"`
	Trigger     string   `json:"trigger" yaml:"trigger"`
	Window      string   `json:"window" yaml:"window"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Channels    []string `json:"channels,omitempty" yaml:"channels"`
	Cooldown    string   `json:"cooldown,omitempty" yaml:"cooldown"`
	// ConsecutiveHits is how many evaluation ticks in a row the trigger
	// must hold before the rule fires. Defaults to 1.
	ConsecutiveHits int       `json:"consecutive_hits,omitempty" yaml:"consecutiveHits"`
	Enabled         bool      `json:"enabled" yaml:"enabled"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`

	trigger   *Expr
	windowD   time.Duration
	cooldownD time.Duration
}

// Compile validates the rule and parses its trigger expression. It must
// succeed before the rule enters a store; evaluation never parses.
func (r *Rule) Compile() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.EventType == "" {
		return fmt.Errorf("rule %q: event type is required", r.Name)
	}
	if r.Trigger == "" {
		return fmt.Errorf("rule %q: trigger is required", r.Name)
	}
	if r.Window == "" {
		return fmt.Errorf("rule %q: window is required", r.Name)
	}

	w, err := time.ParseDuration(r.Window)
	if err != nil || w <= 0 {
		return fmt.Errorf("rule %q: invalid window %q", r.Name, r.Window)
	}
	r.windowD = w

	if r.Cooldown != "" {
		d, err := time.ParseDuration(r.Cooldown)
		if err != nil || d < 0 {
			return fmt.Errorf("rule %q: invalid cooldown %q", r.Name, r.Cooldown)
		}
		r.cooldownD = d
	}

	if r.Severity == "" {
		r.Severity = SeverityWarning
	}
	if !IsValidSeverity(r.Severity) {
		return fmt.Errorf("rule %q: invalid severity %q", r.Name, r.Severity)
	}

	if r.ConsecutiveHits < 0 {
		return fmt.Errorf("rule %q: consecutive_hits cannot be negative", r.Name)
	}
	if r.ConsecutiveHits == 0 {
		r.ConsecutiveHits = 1
	}

	expr, err := Parse(r.Trigger)
	if err != nil {
		return fmt.Errorf("rule %q: parse trigger: %w", r.Name, err)
	}
	r.trigger = expr

	return nil
}

// Eval reports whether the compiled trigger holds for the snapshot.
// Rules that were never compiled do not fire.
func (r *Rule) Eval(env Env, threshold float64) bool {
	if r.trigger == nil {
		return false
	}
	return r.trigger.Eval(env, threshold)
}

// WindowDuration returns the parsed window; zero for uncompiled rules.
func (r *Rule) WindowDuration() time.Duration {
	return r.windowD
}

// CooldownDuration returns the cooldown parsed at compile time, or
// defaultVal when the rule does not set one.
func (r *Rule) CooldownDuration(defaultVal time.Duration) time.Duration {
	if r.cooldownD <= 0 {
		return defaultVal
	}
	return r.cooldownD
}

// Matches reports whether the rule applies to a subject of the given
// type. An empty SubjectType matches everything.
func (r *Rule) Matches(subjectType string) bool {
	return r.SubjectType == "" || r.SubjectType == subjectType
}

type Filter struct {
	EnabledOnly bool
	EventType   string
}
