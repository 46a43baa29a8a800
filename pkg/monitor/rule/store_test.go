package rule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRule(name string) *Rule {
	return &Rule{
		Name:      name,
		EventType: "fall_detected",
		Trigger:   "count >= 1 && last(confidence) >= threshold",
		Window:    "30s",
		Severity:  SeverityCritical,
		Enabled:   true,
	}
}

// --- compile ---

func TestRule_Compile(t *testing.T) {
	r := newTestRule("fall-alert")
	require.NoError(t, r.Compile())

	assert.NotNil(t, r.trigger)
	assert.Equal(t, "30s", r.Window)
	assert.Equal(t, 1, r.ConsecutiveHits)
}

func TestRule_Compile_Defaults(t *testing.T) {
	r := newTestRule("defaults")
	r.Severity = ""
	require.NoError(t, r.Compile())

	assert.Equal(t, SeverityWarning, r.Severity)
	assert.Equal(t, 1, r.ConsecutiveHits)
}

func TestRule_Compile_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"missing name", func(r *Rule) { r.Name = "" }},
		{"missing event type", func(r *Rule) { r.EventType = "" }},
		{"missing trigger", func(r *Rule) { r.Trigger = "" }},
		{"missing window", func(r *Rule) { r.Window = "" }},
		{"bad window", func(r *Rule) { r.Window = "soon" }},
		{"negative window", func(r *Rule) { r.Window = "-10s" }},
		{"bad cooldown", func(r *Rule) { r.Cooldown = "whenever" }},
		{"bad severity", func(r *Rule) { r.Severity = "urgent" }},
		{"bad trigger", func(r *Rule) { r.Trigger = "count >=" }},
		{"negative hits", func(r *Rule) { r.ConsecutiveHits = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRule("bad")
			tc.mutate(r)
			assert.Error(t, r.Compile())
		})
	}
}

func TestRule_CooldownDuration(t *testing.T) {
	r := newTestRule("cooldown")
	require.NoError(t, r.Compile())
	assert.Equal(t, 10*time.Second, r.CooldownDuration(10*time.Second))

	r.Cooldown = "2m"
	require.NoError(t, r.Compile())
	assert.Equal(t, 2*time.Minute, r.CooldownDuration(10*time.Second))

	// The compiled value is what evaluation reads; mutating the raw
	// string without recompiling has no effect.
	r.Cooldown = "1h"
	assert.Equal(t, 2*time.Minute, r.CooldownDuration(10*time.Second))
}

func TestRule_Matches(t *testing.T) {
	r := newTestRule("match")
	assert.True(t, r.Matches("person"))
	assert.True(t, r.Matches("device"))

	r.SubjectType = "person"
	assert.True(t, r.Matches("person"))
	assert.False(t, r.Matches("device"))
}

// --- store ---

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := newTestRule("fall-alert")
	require.NoError(t, store.Create(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "fall-alert", got.Name)
	assert.NotNil(t, got.trigger)
}

func TestMemoryStore_Create_RejectsUncompilable(t *testing.T) {
	store := NewMemoryStore()

	r := newTestRule("broken")
	r.Trigger = "count >="
	assert.Error(t, store.Create(context.Background(), r))
}

func TestMemoryStore_Create_DuplicateName(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestRule("dup")))
	assert.ErrorIs(t, store.Create(ctx, newTestRule("dup")), ErrExists)
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := newTestRule("a-rule")
	b := newTestRule("b-rule")
	b.Enabled = false
	c := newTestRule("c-rule")
	c.EventType = "zone_entry"

	for _, r := range []*Rule{a, b, c} {
		require.NoError(t, store.Create(ctx, r))
	}

	all, total, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "a-rule", all[0].Name)

	enabled, _, err := store.List(ctx, Filter{EnabledOnly: true})
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	byType, _, err := store.List(ctx, Filter{EventType: "zone_entry"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "c-rule", byType[0].Name)
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := newTestRule("update-me")
	require.NoError(t, store.Create(ctx, r))
	created := r.CreatedAt

	updated := newTestRule("renamed")
	updated.ID = r.ID
	updated.Window = "5m"
	require.NoError(t, store.Update(ctx, updated))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, created, got.CreatedAt)

	// Old name is free again.
	require.NoError(t, store.Create(ctx, newTestRule("update-me")))
}

func TestMemoryStore_Update_NameConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := newTestRule("a")
	b := newTestRule("b")
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	clash := newTestRule("a")
	clash.ID = b.ID
	assert.ErrorIs(t, store.Update(ctx, clash), ErrExists)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := newTestRule("to-delete")
	require.NoError(t, store.Create(ctx, r))
	require.NoError(t, store.Delete(ctx, r.ID))

	_, err := store.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, r.ID), ErrNotFound)
}

func TestMemoryStore_SetEnabled(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := newTestRule("toggle")
	require.NoError(t, store.Create(ctx, r))

	got, err := store.SetEnabled(ctx, r.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = store.SetEnabled(ctx, "nope", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- loader ---

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	writeRuleFile(t, dir, "fall.yaml", `
name: fall-alert
eventType: fall_detected
trigger: "count >= 1 && last(confidence) >= threshold"
window: 30s
severity: critical
consecutiveHits: 5
enabled: true
`)
	writeRuleFile(t, dir, "idle.yml", `
name: inactivity
eventType: person_detected
trigger: "idle_seconds > 300"
window: 10m
severity: warning
enabled: true
`)
	// Non-YAML files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))

	store := NewMemoryStore()
	n, err := LoadDir(context.Background(), dir, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rules, total, err := store.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 5, rules[0].ConsecutiveHits)
}

func TestLoadDir_Missing(t *testing.T) {
	store := NewMemoryStore()
	n, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "absent"), store)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadDir_BadRuleAborts(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "bad.yaml", `
name: broken
eventType: fall_detected
trigger: "count >="
window: 30s
`)

	_, err := LoadDir(context.Background(), dir, NewMemoryStore())
	assert.Error(t, err)
}

func writeRuleFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}
