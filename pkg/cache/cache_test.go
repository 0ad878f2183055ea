package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New()
	c.Set("token:100001", "abc", time.Minute)

	got, ok := c.Get("token:100001")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.(string) != "abc" {
		t.Fatalf("got %v, want abc", got)
	}
}

func TestGetMissing(t *testing.T) {
	c := New()
	if _, ok := c.Get("nope"); ok {
		t.Fatalf("expected cache miss")
	}
}

func TestExpiry(t *testing.T) {
	c := New()
	c.Set("token:100001", "abc", 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("token:100001"); ok {
		t.Fatalf("expected expired entry to miss")
	}

	// A fresh Set must revive the key.
	c.Set("token:100001", "def", time.Minute)
	got, ok := c.Get("token:100001")
	if !ok || got.(string) != "def" {
		t.Fatalf("expected refreshed entry, got %v ok=%v", got, ok)
	}
}

func TestDelete(t *testing.T) {
	c := New()
	c.Set("k", 1, time.Minute)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected deleted entry to miss")
	}
}
