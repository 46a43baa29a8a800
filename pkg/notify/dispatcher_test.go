package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreerevanth/behaviorlens/pkg/config"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/alert"
	"github.com/sreerevanth/behaviorlens/pkg/monitor/rule"
)

func defaultConfigForTest(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

type fakeNotifier struct {
	name string
	fail int // fail the first N sends

	mu    sync.Mutex
	sends []string
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(ctx context.Context, title, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("transient failure")
	}
	f.sends = append(f.sends, title)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newFiringAlert(id string) *alert.Alert {
	return &alert.Alert{
		ID:          id,
		RuleID:      "r1",
		RuleName:    "fall-alert",
		SubjectID:   "s1",
		SubjectName: "ward-3-bed-1",
		EventType:   "fall_detected",
		Severity:    rule.SeverityCritical,
		Status:      alert.StatusFiring,
		Message:     "fall detected with high confidence",
		Value:       0.97,
		TriggeredAt: time.Now(),
	}
}

func TestDispatcher_DeliversToAllWhenNoChannels(t *testing.T) {
	a := &fakeNotifier{name: "console"}
	b := &fakeNotifier{name: "webhook"}
	d := NewDispatcher([]Notifier{a, b}, DispatcherOptions{Workers: 1, RetryDelay: time.Millisecond})
	d.Start(context.Background())

	d.Dispatch(newFiringAlert("a1"), nil)
	d.Stop()

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	dispatched, failed, dropped := d.Stats()
	assert.Equal(t, uint64(2), dispatched)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestDispatcher_ChannelRouting(t *testing.T) {
	console := &fakeNotifier{name: "console"}
	email := &fakeNotifier{name: "email"}
	d := NewDispatcher([]Notifier{console, email}, DispatcherOptions{Workers: 1, RetryDelay: time.Millisecond})
	d.Start(context.Background())

	d.Dispatch(newFiringAlert("a1"), []string{"email"})
	d.Stop()

	assert.Zero(t, console.count())
	assert.Equal(t, 1, email.count())
}

func TestDispatcher_DedupByAlertID(t *testing.T) {
	n := &fakeNotifier{name: "console"}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{Workers: 1, RetryDelay: time.Millisecond})
	d.Start(context.Background())

	a := newFiringAlert("same-id")
	d.Dispatch(a, nil)
	d.Dispatch(a, nil)
	d.Stop()

	assert.Equal(t, 1, n.count())
}

func TestDispatcher_DispatchAfterStopIsDropped(t *testing.T) {
	n := &fakeNotifier{name: "console"}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{Workers: 1, RetryDelay: time.Millisecond})
	d.Start(context.Background())
	d.Stop()

	assert.NotPanics(t, func() {
		d.Dispatch(newFiringAlert("late"), nil)
	})

	_, _, dropped := d.Stats()
	assert.Equal(t, uint64(1), dropped)
	assert.Equal(t, 0, n.count())
}

func TestDispatcher_Depth(t *testing.T) {
	n := &fakeNotifier{name: "console"}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{QueueSize: 8})

	// No workers running yet, so queued deliveries sit in the buffer.
	d.Dispatch(newFiringAlert("a1"), nil)
	d.Dispatch(newFiringAlert("a2"), nil)
	assert.Equal(t, 2, d.Depth())

	d.Start(context.Background())
	d.Stop()
	assert.Equal(t, 0, d.Depth())
}

func TestDispatcher_StopIsIdempotent(t *testing.T) {
	d := NewDispatcher(nil, DispatcherOptions{Workers: 1})
	d.Start(context.Background())
	d.Stop()
	assert.NotPanics(t, d.Stop)
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	n := &fakeNotifier{name: "console", fail: 2}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{
		Workers: 1, MaxAttempts: 3, RetryDelay: time.Millisecond,
	})
	d.Start(context.Background())

	d.Dispatch(newFiringAlert("a1"), nil)
	d.Stop()

	assert.Equal(t, 1, n.count())
	dispatched, failed, _ := d.Stats()
	assert.Equal(t, uint64(1), dispatched)
	assert.Zero(t, failed)
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	n := &fakeNotifier{name: "console", fail: 10}
	d := NewDispatcher([]Notifier{n}, DispatcherOptions{
		Workers: 1, MaxAttempts: 2, RetryDelay: time.Millisecond,
	})
	d.Start(context.Background())

	d.Dispatch(newFiringAlert("a1"), nil)
	d.Stop()

	assert.Zero(t, n.count())
	dispatched, failed, _ := d.Stats()
	assert.Zero(t, dispatched)
	assert.Equal(t, uint64(1), failed)
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &WebhookNotifier{
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "secret"},
		Timeout: time.Second,
	}
	require.NoError(t, n.Send(context.Background(), "[CRITICAL] fall-alert", "details"))
	assert.Equal(t, "[CRITICAL] fall-alert", got["title"])
	assert.Equal(t, "details", got["message"])
}

func TestWebhookNotifier_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Timeout: time.Second}
	assert.Error(t, n.Send(context.Background(), "t", "x"))
}

func TestFormatAlert(t *testing.T) {
	title, text := FormatAlert(newFiringAlert("a1"))

	assert.Equal(t, "[CRITICAL] fall-alert", title)
	assert.Contains(t, text, "fall detected with high confidence")
	assert.Contains(t, text, "Subject: ward-3-bed-1")
	assert.Contains(t, text, "Event type: fall_detected")
	assert.Contains(t, text, "Observed value: 0.970")
}

func TestBuild_NotifierSet(t *testing.T) {
	cfg := defaultConfigForTest(t)

	// Console only by default.
	ns := Build(cfg)
	require.Len(t, ns, 1)
	assert.Equal(t, "console", ns[0].Name())

	cfg.Webhook.URL = "https://hooks.example.com/alert"
	cfg.Email.Host = "smtp.example.com"
	cfg.Email.From = "alerts@example.com"
	cfg.Email.To = []string{"ops@example.com"}

	ns = Build(cfg)
	require.Len(t, ns, 3)
	assert.Equal(t, "webhook", ns[1].Name())
	assert.Equal(t, "email", ns[2].Name())
}
