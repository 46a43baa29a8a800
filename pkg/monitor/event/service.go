package event

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
	"github.com/sreerevanth/behaviorlens/pkg/monitor"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/subject"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/window"
)

var (
	ErrUnknownSubject    = errors.New("unknown subject")
	ErrInvalidType       = errors.New("event type is required")
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
	ErrFutureTimestamp   = errors.New("event timestamp too far in the future")
	ErrRateLimited       = errors.New("event rate limit exceeded for subject")
)

// Archiver persists accepted events. The intake path treats archive
// failures as non-fatal: evaluation runs off the in-memory windows.
type Archiver interface {
	ArchiveEvent(ctx context.Context, e *Event) error
}

// Options bound the intake path.
type Options struct {
	// RatePerSubject is events/second accepted per subject; zero
	// disables limiting.
	RatePerSubject float64
	Burst          int
	// FutureTolerance is how far ahead of the server clock an event
	// timestamp may sit before rejection. Zero means one minute.
	FutureTolerance time.Duration
}

// Service is the intake pipeline: validate, normalize, window, archive,
// announce.
type Service struct {
	subjects subject.Store
	windows  *window.Aggregator
	archive  Archiver
	events   monitor.Publisher
	opts     Options

	limiters sync.Map // subject ID -> *rate.Limiter
	ingested atomic.Uint64
	rejected atomic.Uint64
}

func NewService(subjects subject.Store, windows *window.Aggregator, archive Archiver, events monitor.Publisher, opts Options) *Service {
	if events == nil {
		events = monitor.NoopPublisher{}
	}
	if opts.FutureTolerance <= 0 {
		opts.FutureTolerance = time.Minute
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Service{
		subjects: subjects,
		windows:  windows,
		archive:  archive,
		events:   events,
		opts:     opts,
	}
}

// Ingest validates and accepts one event. On success the event has an
// ID, a normalized type and a ReceivedAt stamp, and its record is
// visible to the next evaluation tick.
func (s *Service) Ingest(ctx context.Context, e *Event) error {
	now := time.Now()

	e.Type = NormalizeType(e.Type)
	if e.Type == "" {
		s.rejected.Add(1)
		return ErrInvalidType
	}
	if math.IsNaN(e.Confidence) || e.Confidence < 0 || e.Confidence > 1 {
		s.rejected.Add(1)
		return ErrInvalidConfidence
	}
	for k, v := range e.Attributes {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			delete(e.Attributes, k)
		}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Timestamp.After(now.Add(s.opts.FutureTolerance)) {
		s.rejected.Add(1)
		return ErrFutureTimestamp
	}

	if _, err := s.subjects.Get(ctx, e.SubjectID); err != nil {
		s.rejected.Add(1)
		return fmt.Errorf("%w: %s", ErrUnknownSubject, e.SubjectID)
	}

	if !s.allow(e.SubjectID) {
		s.rejected.Add(1)
		return fmt.Errorf("%w: %s", ErrRateLimited, e.SubjectID)
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.ReceivedAt = now

	s.windows.Append(e.SubjectID, e.Type, window.Record{
		Timestamp:  e.Timestamp,
		Confidence: e.Confidence,
		Attrs:      e.Attributes,
	})

	if s.archive != nil {
		if err := s.archive.ArchiveEvent(ctx, e); err != nil {
			logger.Error(ctx, "failed to archive event",
				"event_id", e.ID,
				"subject_id", e.SubjectID,
				"error", err)
		}
	}

	s.ingested.Add(1)

	_ = s.events.Publish(monitor.NewChangeEvent("event", "event.ingested", map[string]any{
		"event_id":   e.ID,
		"subject_id": e.SubjectID,
		"event_type": e.Type,
	}))

	return nil
}

// Watch registers interest in a (subject, event type) pair so idle
// detection has a reference point before the first event arrives.
func (s *Service) Watch(subjectID, eventType string) {
	s.windows.Touch(subjectID, NormalizeType(eventType))
}

// Forget drops all window state for a subject, typically after it is
// removed from the registry.
func (s *Service) Forget(subjectID string) {
	s.windows.DropSubject(subjectID)
	s.limiters.Delete(subjectID)
}

// Stats reports intake counters since start.
func (s *Service) Stats() (ingested, rejected uint64) {
	return s.ingested.Load(), s.rejected.Load()
}

func (s *Service) allow(subjectID string) bool {
	if s.opts.RatePerSubject <= 0 {
		return true
	}
	v, _ := s.limiters.LoadOrStore(subjectID, rate.NewLimiter(rate.Limit(s.opts.RatePerSubject), s.opts.Burst))
	return v.(*rate.Limiter).Allow()
}
