package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return ""
	}
}

func TestClientLifecycle(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	first := b.Subscribe()
	second := b.Subscribe()
	if n := b.ClientCount(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}
	b.Unsubscribe(first)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d after unsubscribe, want 1", n)
	}
	if _, ok := <-first; ok {
		t.Error("unsubscribed channel should be closed")
	}
	b.Unsubscribe(second)
	// Unsubscribing twice is harmless.
	b.Unsubscribe(second)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
}

func TestPublishPatternEvent(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishPatternEvent("updated", "p-1")

	msg := receive(t, ch)
	if !strings.HasPrefix(msg, "id: 1\nevent: pattern.changed\n") {
		t.Errorf("unexpected header lines in %q", msg)
	}
	if !strings.Contains(msg, `"id":"p-1"`) || !strings.Contains(msg, `"kind":"updated"`) {
		t.Errorf("missing data in %q", msg)
	}
	if !strings.HasSuffix(msg, "\n\n") {
		t.Errorf("event not terminated by a blank line: %q", msg)
	}
}

func TestPublishRecordEvent_ThrottlesIndexChanged(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent("created", "case", "c-1")
	b.PublishRecordEvent("updated", "case", "c-1")
	b.PublishRecordEvent("deleted", "case", "c-2")
	b.PublishRecordEvent("archived", "case", "c-3")

	time.Sleep(50 * time.Millisecond)
	var records, index int
	for _, msg := range drain(ch) {
		switch {
		case strings.Contains(msg, "event: index.changed"):
			index++
		case strings.Contains(msg, "event: record."):
			records++
		}
	}
	if records != 3 {
		t.Errorf("record events = %d, want 3", records)
	}
	if index != 1 {
		t.Errorf("index.changed events = %d, want 1", index)
	}
}

func TestRecordEvent(t *testing.T) {
	tests := []struct {
		kind string
		want string
		ok   bool
	}{
		{"created", TypeRecordCreated, true},
		{"updated", TypeRecordUpdated, true},
		{"deleted", TypeRecordDeleted, true},
		{"archived", "", false},
	}
	for _, tt := range tests {
		ev, ok := RecordEvent(tt.kind, "case", "c-1")
		if ok != tt.ok || ev.Type != tt.want {
			t.Errorf("RecordEvent(%q) = %q, %v; want %q, %v", tt.kind, ev.Type, ok, tt.want, tt.ok)
		}
		if ok && !ev.touchesIndex {
			t.Errorf("RecordEvent(%q) should trigger index.changed", tt.kind)
		}
	}
	if PatternEvent("created", "p-1").touchesIndex {
		t.Error("pattern events should not trigger index.changed")
	}
}

func TestPublish_PlainEventSkipsIndexChanged(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "custom", Data: map[string]int{"n": 1}})
	b.PublishPatternEvent("deleted", "p-1")

	first := receive(t, ch)
	second := receive(t, ch)
	if !strings.HasPrefix(first, "id: 1\nevent: custom\n") || !strings.Contains(first, `"n":1`) {
		t.Errorf("first event = %q", first)
	}
	if !strings.HasPrefix(second, "id: 2\nevent: pattern.changed\n") {
		t.Errorf("second event = %q", second)
	}
	time.Sleep(20 * time.Millisecond)
	if rest := drain(ch); len(rest) != 0 {
		t.Errorf("unexpected extra events: %v", rest)
	}
}

func TestPublish_UnencodableDataIsDropped(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "broken", Data: func() {}})
	b.PublishPatternEvent("created", "p-1")

	msg := receive(t, ch)
	if !strings.HasPrefix(msg, "id: 1\nevent: pattern.changed\n") {
		t.Errorf("dropped event should not consume an id: %q", msg)
	}
}

func TestPublishIndexEvent_OnlyRebuilds(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishIndexEvent("indexed", "c-1")
	b.PublishIndexEvent("rebuilt", "")

	msg := receive(t, ch)
	if !strings.Contains(msg, "event: index.rebuilt") {
		t.Errorf("got %q, want index.rebuilt", msg)
	}
	time.Sleep(20 * time.Millisecond)
	if rest := drain(ch); len(rest) != 0 {
		t.Errorf("unexpected extra events: %v", rest)
	}
}

func TestServeHTTP_StreamsUntilDisconnect(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.PublishRecordEvent("created", "note", "n-1")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: record.created") {
		t.Errorf("stream missing record event: %q", body)
	}
	if !strings.Contains(body, `"entity_type":"note"`) {
		t.Errorf("stream missing entity type: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after disconnect, want 0", n)
	}
}

func TestServeHTTP_Heartbeat(t *testing.T) {
	b := NewBroker(time.Second, WithHeartbeatInterval(10*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), ": heartbeat ") {
		t.Errorf("stream missing heartbeat comment: %q", w.Body.String())
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < clientBuffer+20; i++ {
		b.PublishPatternEvent("created", "p")
	}
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel should be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d after close, want 0", n)
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close should return a closed channel")
	}

	b.PublishPatternEvent("deleted", "p")
	b.PublishRecordEvent("deleted", "case", "c")
	b.PublishIndexEvent("rebuilt", "")
}
