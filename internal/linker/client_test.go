package linker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func decodeBody(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
	return body
}

func TestAuthenticateCachesToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		calls.Add(1)
		body := decodeBody(t, r)
		if body["uid"] != "100" || body["password"] != "pw" {
			t.Errorf("unexpected credentials: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "success", "token": "tok-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, nil)
	for i := 0; i < 3; i++ {
		tok, err := c.Authenticate(context.Background(), "100", "pw")
		if err != nil {
			t.Fatalf("authenticate failed: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("unexpected token %q", tok)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestAuthenticateFailurePassesMessageThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "bad credentials for account"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, nil)
	_, err := c.Authenticate(context.Background(), "100", "pw")
	if err == nil || !strings.Contains(err.Error(), "bad credentials for account") {
		t.Fatalf("expected verbatim failure message, got %v", err)
	}
}

func TestEstablishRelationshipVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["target"] == "ok" {
			json.NewEncoder(w).Encode(map[string]string{"status": "success", "message": "friend request accepted"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "friend list full"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, nil)

	ok, msg, err := c.EstablishRelationship(context.Background(), "tok", "ok")
	if err != nil || !ok || msg != "friend request accepted" {
		t.Fatalf("unexpected verdict: ok=%v msg=%q err=%v", ok, msg, err)
	}

	ok, msg, err = c.EstablishRelationship(context.Background(), "tok", "full")
	if err != nil {
		t.Fatalf("call should complete: %v", err)
	}
	if ok || msg != "friend list full" {
		t.Fatalf("expected rejection with verbatim message, got ok=%v msg=%q", ok, msg)
	}
}

func TestCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, 50*time.Millisecond, nil, nil)
	_, _, err := c.DissolveRelationship(context.Background(), "tok", "1")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestResolveIdentityCachesAndDefaults(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "success", "name": "PlayerOne", "region": "ME", "level": "61",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, nil)
	id, err := c.ResolveIdentity(context.Background(), "42")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if id.Name != "PlayerOne" || id.Region != "ME" || id.Level != "61" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, err := c.ResolveIdentity(context.Background(), "42"); err != nil {
		t.Fatalf("cached resolve failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected identity to be cached, got %d calls", calls.Load())
	}
}

func TestResolveIdentityFailureReturnsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "player not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, nil)
	id, err := c.ResolveIdentity(context.Background(), "404")
	if err == nil {
		t.Fatalf("expected error")
	}
	if id.Name != "unknown" {
		t.Fatalf("expected unknown placeholder, got %+v", id)
	}
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil, nil)
	for i := 0; i < 5; i++ {
		_, _, _ = c.EstablishRelationship(context.Background(), "tok", "1")
	}
	_, _, err := c.EstablishRelationship(context.Background(), "tok", "1")
	if err == nil || !strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatalf("expected circuit breaker to fast-fail, got %v", err)
	}
}
