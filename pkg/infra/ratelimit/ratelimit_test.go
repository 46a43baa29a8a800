package ratelimit

import (
	"testing"
)

func TestKeyedLimiter_Allow(t *testing.T) {
	l := NewPerMinute(3)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow("client-a")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, err := l.Allow("client-a")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if ok {
		t.Fatal("request past the burst should be rejected")
	}
}

func TestKeyedLimiter_KeysAreIndependent(t *testing.T) {
	l := NewPerMinute(1)

	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("first request for client-a should be allowed")
	}
	if ok, _ := l.Allow("client-b"); !ok {
		t.Fatal("first request for client-b should be allowed")
	}
	if ok, _ := l.Allow("client-a"); ok {
		t.Fatal("second request for client-a should be rejected")
	}
}

func TestKeyedLimiter_Reset(t *testing.T) {
	l := NewPerMinute(1)

	l.Allow("client-a")
	if ok, _ := l.Allow("client-a"); ok {
		t.Fatal("should be rejected before reset")
	}

	l.Reset("client-a")
	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("should be allowed after reset")
	}
}

func TestKeyedLimiter_EmptyKey(t *testing.T) {
	l := NewPerMinute(1)
	if _, err := l.Allow(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}
