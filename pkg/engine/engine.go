// Package engine runs the evaluation loop: every tick it walks the
// enabled rules across the registered subjects, checks triggers against
// window snapshots and turns confirmed hits into alerts.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/alert"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/subject"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/window"
)

// AlertArchiver persists fired alerts for reports and retention.
type AlertArchiver interface {
	ArchiveAlert(ctx context.Context, a *alert.Alert) error
}

// Purger removes archived rows older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (events, alerts int64, err error)
}

// Dispatcher routes a fired alert to its notification channels.
type Dispatcher interface {
	Dispatch(a *alert.Alert, channels []string)
}

type Options struct {
	EvalInterval time.Duration
	// AnomalyThreshold is bound to the `threshold` identifier in rule
	// triggers.
	AnomalyThreshold float64
	// DefaultCooldown applies to rules that do not set their own.
	DefaultCooldown time.Duration
	RetentionDays   int
	// RetentionSchedule is a six-field cron spec for the purge job.
	RetentionSchedule string
}

// pairKey identifies one (rule, subject) evaluation stream.
type pairKey struct {
	ruleID    string
	subjectID string
}

type Engine struct {
	rules      rule.Store
	subjects   subject.Store
	windows    *window.Aggregator
	alerts     *alert.Service
	archive    AlertArchiver
	dispatcher Dispatcher
	purger     Purger
	opts       Options

	mu        sync.Mutex
	streaks   map[pairKey]int
	lastFired map[pairKey]time.Time

	cron      *cron.Cron
	startedAt time.Time
	ticks     atomic.Uint64
	evaluated atomic.Uint64
	fired     atomic.Uint64
	lastTick  atomic.Int64 // unix milli
}

func New(rules rule.Store, subjects subject.Store, windows *window.Aggregator,
	alerts *alert.Service, archive AlertArchiver, dispatcher Dispatcher,
	purger Purger, opts Options) *Engine {

	if opts.EvalInterval <= 0 {
		opts.EvalInterval = 10 * time.Second
	}
	if opts.DefaultCooldown <= 0 {
		opts.DefaultCooldown = 10 * time.Second
	}
	if opts.AnomalyThreshold <= 0 {
		opts.AnomalyThreshold = 0.9
	}
	return &Engine{
		rules:      rules,
		subjects:   subjects,
		windows:    windows,
		alerts:     alerts,
		archive:    archive,
		dispatcher: dispatcher,
		purger:     purger,
		opts:       opts,
		streaks:    make(map[pairKey]int),
		lastFired:  make(map[pairKey]time.Time),
	}
}

// Run blocks, evaluating on every tick until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.startedAt = time.Now()

	if err := e.startRetention(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "evaluation loop started",
		"interval", e.opts.EvalInterval.String(),
		"threshold", e.opts.AnomalyThreshold)

	ticker := time.NewTicker(e.opts.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if e.cron != nil {
				<-e.cron.Stop().Done()
			}
			logger.Info(ctx, "evaluation loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			e.EvaluateAll(ctx, now)
			e.windows.Sweep(now)
		}
	}
}

// EvaluateAll runs one evaluation pass at the given instant. Exposed so
// ticks are deterministic under test.
func (e *Engine) EvaluateAll(ctx context.Context, now time.Time) {
	e.ticks.Add(1)
	e.lastTick.Store(now.UnixMilli())

	rules, _, err := e.rules.List(ctx, rule.Filter{EnabledOnly: true})
	if err != nil {
		logger.Error(ctx, "failed to list rules", "error", err)
		return
	}
	subjects, _, err := e.subjects.List(ctx, subject.Filter{})
	if err != nil {
		logger.Error(ctx, "failed to list subjects", "error", err)
		return
	}

	for i := range rules {
		r := &rules[i]
		for j := range subjects {
			sub := &subjects[j]
			if !r.Matches(sub.Type) {
				continue
			}
			e.evaluatePair(ctx, r, sub, now)
		}
	}
}

func (e *Engine) evaluatePair(ctx context.Context, r *rule.Rule, sub *subject.Subject, now time.Time) {
	// Idle tracking needs a reference point from the moment a pair
	// comes under evaluation, not from its first event.
	e.windows.Touch(sub.ID, r.EventType)

	snap := e.windows.Snapshot(sub.ID, r.EventType, r.WindowDuration(), now)
	e.evaluated.Add(1)

	key := pairKey{ruleID: r.ID, subjectID: sub.ID}

	if !r.Eval(snap, e.opts.AnomalyThreshold) {
		e.mu.Lock()
		delete(e.streaks, key)
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.streaks[key]++
	streak := e.streaks[key]
	confirmed := streak >= r.ConsecutiveHits

	cooldown := r.CooldownDuration(e.opts.DefaultCooldown)
	last, firedBefore := e.lastFired[key]
	inCooldown := firedBefore && now.Sub(last) < cooldown

	if confirmed && !inCooldown {
		e.lastFired[key] = now
		delete(e.streaks, key)
	}
	e.mu.Unlock()

	if !confirmed || inCooldown {
		return
	}

	e.fire(ctx, r, sub, snap, now)
}

func (e *Engine) fire(ctx context.Context, r *rule.Rule, sub *subject.Subject, snap *window.Snapshot, now time.Time) {
	e.fired.Add(1)

	a := &alert.Alert{
		RuleID:      r.ID,
		RuleName:    r.Name,
		SubjectID:   sub.ID,
		SubjectName: sub.Name,
		EventType:   r.EventType,
		Severity:    r.Severity,
		Message:     alertMessage(r, sub),
		Value:       observedValue(snap),
		Details: map[string]any{
			"count":        snap.Count(),
			"idle_seconds": snap.IdleSeconds(),
			"trigger":      r.Trigger,
			"window":       r.Window,
		},
		TriggeredAt: now,
	}

	if err := e.alerts.Create(ctx, a); err != nil {
		logger.Error(ctx, "failed to create alert",
			"rule", r.Name,
			"subject_id", sub.ID,
			"error", err)
		return
	}

	logger.Warn(ctx, "rule fired",
		"rule", r.Name,
		"subject", sub.Name,
		"severity", string(r.Severity),
		"value", a.Value)

	if e.archive != nil {
		if err := e.archive.ArchiveAlert(ctx, a); err != nil {
			logger.Error(ctx, "failed to archive alert", "alert_id", a.ID, "error", err)
		}
	}

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(a, unionChannels(r.Channels, sub.Channels))
	}
}

// alertMessage prefers the rule's own description over a generated one.
func alertMessage(r *rule.Rule, sub *subject.Subject) string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("rule %s triggered for %s", r.Name, sub.Name)
}

// observedValue picks the aggregate worth showing in a notification:
// the latest confidence when the window has events, the idle time for
// absence rules, otherwise the raw count.
func observedValue(snap *window.Snapshot) float64 {
	if v, ok := snap.Aggregate("last", "confidence"); ok {
		return v
	}
	if idle := snap.IdleSeconds(); idle > 0 {
		return idle
	}
	return snap.Count()
}

func unionChannels(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, ch := range a {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	for _, ch := range b {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func (e *Engine) startRetention(ctx context.Context) error {
	if e.purger == nil || e.opts.RetentionDays <= 0 || e.opts.RetentionSchedule == "" {
		return nil
	}

	e.cron = cron.New(cron.WithSeconds())
	_, err := e.cron.AddFunc(e.opts.RetentionSchedule, func() {
		cutoff := time.Now().AddDate(0, 0, -e.opts.RetentionDays)
		events, alerts, err := e.purger.Purge(ctx, cutoff)
		if err != nil {
			logger.Error(ctx, "retention purge failed", "error", err)
			return
		}
		logger.Info(ctx, "retention purge completed",
			"cutoff", cutoff.Format(time.RFC3339),
			"events_removed", events,
			"alerts_removed", alerts)
	})
	if err != nil {
		return fmt.Errorf("schedule retention job: %w", err)
	}
	e.cron.Start()
	return nil
}
