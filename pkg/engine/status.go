package engine

import "time"

// Stats is the engine's view for the status endpoint.
type Stats struct {
	StartedAt time.Time `json:"started_at"`
	Ticks     uint64    `json:"ticks"`
	Evaluated uint64    `json:"pairs_evaluated"`
	Fired     uint64    `json:"alerts_fired"`
	LastTick  time.Time `json:"last_tick,omitempty"`
}

func (e *Engine) Stats() Stats {
	s := Stats{
		StartedAt: e.startedAt,
		Ticks:     e.ticks.Load(),
		Evaluated: e.evaluated.Load(),
		Fired:     e.fired.Load(),
	}
	if ms := e.lastTick.Load(); ms > 0 {
		s.LastTick = time.UnixMilli(ms)
	}
	return s
}
