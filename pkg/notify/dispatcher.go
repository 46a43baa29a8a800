package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/alert"
)

// DispatcherOptions bound delivery behaviour.
type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
}

type delivery struct {
	alert    *alert.Alert
	channels []string
}

// Dispatcher fans alerts out to notifiers through a bounded queue. Each
// alert ID is delivered at most once; a full queue drops the delivery
// rather than stalling evaluation.
type Dispatcher struct {
	notifiers []Notifier
	opts      DispatcherOptions

	queue  chan delivery
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	seen    map[string]time.Time
	stopped bool

	dispatched atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
}

func NewDispatcher(notifiers []Notifier, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Dispatcher{
		notifiers: notifiers,
		opts:      opts,
		queue:     make(chan delivery, opts.QueueSize),
		seen:      make(map[string]time.Time),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop drains in-flight deliveries and shuts the workers down. Dispatch
// calls arriving after Stop are dropped; the queue is closed under the
// same lock Dispatch sends under, so late producers cannot panic.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// seenTTL bounds the dedup set: an alert ID older than this may be
// delivered again, which is harmless since alert IDs are never reused.
const seenTTL = time.Hour

// Dispatch queues an alert for the given channels. An empty channel
// list sends to every configured notifier.
func (d *Dispatcher) Dispatch(a *alert.Alert, channels []string) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.dropped.Add(1)
		return
	}

	if len(d.seen) > 4096 {
		for id, at := range d.seen {
			if now.Sub(at) > seenTTL {
				delete(d.seen, id)
			}
		}
	}
	if at, dup := d.seen[a.ID]; dup && now.Sub(at) <= seenTTL {
		return
	}
	d.seen[a.ID] = now

	select {
	case d.queue <- delivery{alert: a, channels: channels}:
	default:
		d.dropped.Add(1)
		logger.Error(context.Background(), "dispatch queue full, dropping alert",
			"alert_id", a.ID,
			"rule", a.RuleName)
	}
}

// Stats reports delivery counters since start.
func (d *Dispatcher) Stats() (dispatched, failed, dropped uint64) {
	return d.dispatched.Load(), d.failed.Load(), d.dropped.Load()
}

// Depth reports how many deliveries are queued but not yet picked up.
func (d *Dispatcher) Depth() int {
	return len(d.queue)
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for dl := range d.queue {
		d.deliver(ctx, dl)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, dl delivery) {
	title, text := FormatAlert(dl.alert)

	routed := len(dl.channels) > 0
	wanted := make(map[string]bool, len(dl.channels))
	for _, ch := range dl.channels {
		wanted[ch] = true
	}

	for _, n := range d.notifiers {
		if routed && !wanted[n.Name()] {
			continue
		}
		delete(wanted, n.Name())
		if err := d.sendWithRetry(ctx, n, title, text); err != nil {
			d.failed.Add(1)
			logger.Error(ctx, "failed to deliver alert",
				"alert_id", dl.alert.ID,
				"channel", n.Name(),
				"error", err)
			continue
		}
		d.dispatched.Add(1)
	}

	for ch := range wanted {
		logger.Warn(ctx, "alert routed to unknown channel",
			"alert_id", dl.alert.ID,
			"channel", ch)
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, n Notifier, title, text string) error {
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if err = n.Send(ctx, title, text); err == nil {
			return nil
		}
		if attempt == d.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.opts.RetryDelay):
		}
	}
	return err
}

// FormatAlert renders an alert as a notification title and body.
func FormatAlert(a *alert.Alert) (title, text string) {
	title = fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.RuleName)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", a.Message)
	subjectLabel := a.SubjectName
	if subjectLabel == "" {
		subjectLabel = a.SubjectID
	}
	fmt.Fprintf(&b, "Subject: %s\n", subjectLabel)
	fmt.Fprintf(&b, "Event type: %s\n", a.EventType)
	fmt.Fprintf(&b, "Observed value: %.3f\n", a.Value)
	fmt.Fprintf(&b, "Triggered at: %s", a.TriggeredAt.Format(time.RFC3339))
	return title, b.String()
}
