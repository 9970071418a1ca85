package nexauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("no %q event arrived", eventType)
		}
	}
}

func TestAuditEventsFlowToSink(t *testing.T) {
	sink := NewChannelSink(16)

	mini := newTestEngineRedis(t)
	store := newFakeUserStore()
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(mini).
		WithUserStore(store).
		WithMailer(&fakeMailer{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	id := registerUser(t, engine, "alice@example.com", "sekret1")
	event := waitForEvent(t, sink, "auth.register")
	if !event.Success || event.UserID != id || event.Email != "alice@example.com" {
		t.Fatalf("unexpected register event: %+v", event)
	}

	if _, err := engine.Login(context.Background(), "alice@example.com", "wrong"); err == nil {
		t.Fatal("bad login succeeded")
	}
	event = waitForEvent(t, sink, "auth.login")
	if event.Success {
		t.Fatalf("failed login audited as success: %+v", event)
	}
	if event.Error == "" {
		t.Fatal("failure event carries no error")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, AuditEvent) { <-s.release }

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := blockingSink{release: block}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1}, sink)
	defer func() { close(block); d.Close() }()

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		d.Emit(AuditEvent{EventType: "auth.login"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.Dropped() == 0 {
		t.Fatal("no events dropped with a full buffer")
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, nil)
	if d != nil {
		t.Fatal("disabled dispatcher is not nil")
	}

	// Nil-receiver methods are safe.
	d.Emit(AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType: "auth.login",
		UserID:    "user-1",
		Success:   true,
	})

	line := strings.TrimSpace(buf.String())
	var decoded AuditEvent
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("sink output is not one JSON line: %v", err)
	}
	if decoded.EventType != "auth.login" || decoded.UserID != "user-1" || !decoded.Success {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	registerUser(t, engine, "alice@example.com", "sekret1")

	snapshot := engine.MetricsSnapshot()
	if snapshot["register_success"] != 1 {
		t.Fatalf("register_success = %d, want 1", snapshot["register_success"])
	}
	if snapshot["login_success"] != 0 {
		t.Fatalf("login_success = %d, want 0", snapshot["login_success"])
	}
	if len(snapshot) != int(metricCount) {
		t.Fatalf("snapshot has %d counters, want %d", len(snapshot), metricCount)
	}
}
