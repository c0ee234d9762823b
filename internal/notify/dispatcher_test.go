package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu       sync.Mutex
	name     string
	err      error
	events   []Event
	contents []string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, event Event, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	s.contents = append(s.contents, content)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestWebhookSinkPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(server.URL)
	if err != nil {
		t.Fatalf("new webhook sink: %v", err)
	}
	dispatcher, err := NewDispatcher([]Sink{sink})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.Notify(context.Background(), Event{
		Type:     EventPMCreated,
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		AssetID:  "asset-7",
		ConfigID: "cfg-1",
		PMID:     "pm-9",
		Value:    float64(12),
	})

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("unexpected msgtype: %s", payload.MsgType)
		}
		for _, want := range []string{"PM Created", "Asset: asset-7", "PM config: cfg-1", "PM: pm-9", "Value: 12"} {
			if !strings.Contains(payload.Text.Content, want) {
				t.Fatalf("content missing %q: %s", want, payload.Text.Content)
			}
		}
		if payload.Event.Type != EventPMCreated || payload.Event.PMID != "pm-9" {
			t.Fatalf("unexpected event: %+v", payload.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestWebhookSinkNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(server.URL)
	if err != nil {
		t.Fatalf("new webhook sink: %v", err)
	}
	if err := sink.Send(context.Background(), Event{Type: EventPMFailed}, "x"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestDispatcherDedupeWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	sink := &recordingSink{name: "rec"}
	dispatcher, err := NewDispatcher([]Sink{sink}, WithClock(clock), WithDedupeWindow(time.Hour))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	event := Event{Type: EventPMFailed, ConfigID: "cfg-1", AssetID: "a", Message: "advance failed"}

	dispatcher.Notify(context.Background(), event)
	clock.Advance(time.Minute)
	dispatcher.Notify(context.Background(), event)
	if got := sink.count(); got != 1 {
		t.Fatalf("expected duplicate suppressed, got %d sends", got)
	}

	changed := event
	changed.Message = "create failed"
	dispatcher.Notify(context.Background(), changed)
	if got := sink.count(); got != 2 {
		t.Fatalf("expected changed event delivered, got %d sends", got)
	}

	clock.Advance(2 * time.Hour)
	dispatcher.Notify(context.Background(), changed)
	if got := sink.count(); got != 3 {
		t.Fatalf("expected delivery after window, got %d sends", got)
	}
}

func TestDispatcherFansOutPastFailingSink(t *testing.T) {
	broken := &recordingSink{name: "broken", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	dispatcher, err := NewDispatcher([]Sink{broken, nil, ok})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	dispatcher.Notify(context.Background(), Event{Type: EventCounterPublished, AssetID: "a"})
	if ok.count() != 1 {
		t.Fatalf("expected healthy sink to receive event")
	}
	if ok.events[0].At.IsZero() {
		t.Fatalf("expected timestamp to be filled")
	}
}

func TestDispatcherEventTypeFilter(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	dispatcher, err := NewDispatcher([]Sink{sink}, WithEventTypes(EventPMCreated))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	dispatcher.Notify(context.Background(), Event{Type: EventCounterPublished})
	dispatcher.Notify(context.Background(), Event{Type: EventPMCreated})
	if got := sink.count(); got != 1 {
		t.Fatalf("expected 1 filtered delivery, got %d", got)
	}
}

func TestNewDispatcherRequiresSink(t *testing.T) {
	if _, err := NewDispatcher(nil); err == nil {
		t.Fatal("expected error without sinks")
	}
}
