package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/autoland/lander/internal/config"
	"github.com/autoland/lander/internal/lander"
)

// threadSafeResponseWriter wraps httptest.ResponseRecorder so tests can read the body
// while the hub is still writing.
type threadSafeResponseWriter struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func newWriter() *threadSafeResponseWriter {
	return &threadSafeResponseWriter{ResponseRecorder: httptest.NewRecorder()}
}

func (w *threadSafeResponseWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ResponseRecorder.Write(b)
}

func (w *threadSafeResponseWriter) Flush() {}

func (w *threadSafeResponseWriter) body() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Body.String()
}

type fixedStatus struct{ status lander.Status }

func (f fixedStatus) Status() lander.Status { return f.status }

func testTiming() *config.TimingConfig {
	cfg := config.Baseline().Timing
	cfg.HeartbeatInterval = time.Hour
	cfg.HeartbeatJitter = 0
	return &cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func subscribe(t *testing.T, hub *Hub, lastEventID string) (*threadSafeResponseWriter, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	w := newWriter()
	done := make(chan error, 1)
	go func() { done <- hub.Subscribe(ctx, w, req) }()
	return w, cancel, done
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testTiming(), nil)
	defer hub.Stop()

	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients, got %d", hub.ClientCount())
	}
	if hub.buffer.Capacity() != 50 {
		t.Errorf("expected buffer capacity 50, got %d", hub.buffer.Capacity())
	}
}

func TestSubscribeSendsReadySnapshot(t *testing.T) {
	hub := NewHub(testTiming(), fixedStatus{lander.Status{State: lander.SeekHome, AutonomousActive: true}})
	defer hub.Stop()

	w, cancel, done := subscribe(t, hub, "")
	waitFor(t, func() bool { return strings.Contains(w.body(), "event: ready") })

	body := w.body()
	if !strings.Contains(body, `"state":"SEEK_HOME"`) {
		t.Errorf("ready event missing state snapshot: %q", body)
	}
	if !strings.Contains(body, `"autonomousActive":true`) {
		t.Errorf("ready event missing active flag: %q", body)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Errorf("Content-Type = %q", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Subscribe returned %v on disconnect", err)
	}
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHubPublish(t *testing.T) {
	hub := NewHub(testTiming(), nil)
	defer hub.Stop()

	w, cancel, _ := subscribe(t, hub, "")
	defer cancel()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	if err := hub.Publish(Event{Type: EventState, Data: map[string]any{"from": "FLYING", "to": "SEEK_HOME"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool { return strings.Contains(w.body(), "event: state") })
	body := w.body()
	if !strings.Contains(body, "id: 1\n") {
		t.Errorf("expected id 1 in stream: %q", body)
	}
	if !strings.Contains(body, `"to":"SEEK_HOME"`) {
		t.Errorf("expected payload in stream: %q", body)
	}
}

func TestPublishWithoutClientsIsBuffered(t *testing.T) {
	hub := NewHub(testTiming(), nil)
	defer hub.Stop()

	for i := 0; i < 3; i++ {
		if err := hub.Publish(Event{Type: EventCommand, Data: map[string]any{"n": i}}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if hub.buffer.Len() != 3 {
		t.Errorf("expected 3 buffered events, got %d", hub.buffer.Len())
	}
}

func TestReconnectWithLastEventIDReplaysMissedEvents(t *testing.T) {
	hub := NewHub(testTiming(), nil)
	defer hub.Stop()

	for _, typ := range []string{EventState, EventCommand, EventFault} {
		_ = hub.Publish(Event{Type: typ, Data: map[string]any{}})
	}

	w, cancel, _ := subscribe(t, hub, "1")
	defer cancel()
	waitFor(t, func() bool { return strings.Contains(w.body(), "event: fault") })

	body := w.body()
	if strings.Contains(body, "id: 1\n") {
		t.Errorf("event 1 should not be replayed: %q", body)
	}
	if !strings.Contains(body, "id: 2\n") || !strings.Contains(body, "id: 3\n") {
		t.Errorf("events 2 and 3 should be replayed: %q", body)
	}
	if strings.Index(body, "id: 2\n") > strings.Index(body, "id: 3\n") {
		t.Errorf("replay out of order: %q", body)
	}
}

// streamIDs returns the event IDs written to an SSE body, in stream order.
func streamIDs(t *testing.T, body string) []int64 {
	t.Helper()
	var ids []int64
	for _, line := range strings.Split(body, "\n") {
		raw, ok := strings.CutPrefix(line, "id: ")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			t.Fatalf("bad id line %q", line)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestConcurrentPublishersKeepIDOrder(t *testing.T) {
	hub := NewHub(testTiming(), nil)
	defer hub.Stop()

	w, cancel, _ := subscribe(t, hub, "")
	defer cancel()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	const publishers, perPublisher = 8, 10
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_ = hub.Publish(Event{Type: EventCommand, Data: map[string]any{"n": i}})
			}
		}()
	}
	wg.Wait()

	total := publishers * perPublisher
	waitFor(t, func() bool { return strings.Contains(w.body(), "id: "+strconv.Itoa(total)+"\n") })

	ids := streamIDs(t, w.body())
	if len(ids) != total {
		t.Fatalf("client saw %d events, want %d", len(ids), total)
	}
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("event %d has id %d, want %d", i, id, i+1)
		}
	}
}

func TestReplayWhilePublishingSendsEachEventOnce(t *testing.T) {
	hub := NewHub(testTiming(), nil)
	defer hub.Stop()

	for i := 0; i < 20; i++ {
		_ = hub.Publish(Event{Type: EventState, Data: map[string]any{}})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = hub.Publish(Event{Type: EventCommand, Data: map[string]any{}})
		}
	}()
	w, cancel, _ := subscribe(t, hub, "5")
	defer cancel()
	<-done

	waitFor(t, func() bool { return strings.Contains(w.body(), "id: 40\n") })

	ids := streamIDs(t, w.body())
	if len(ids) != 35 {
		t.Fatalf("client saw %d events, want 35: %v", len(ids), ids)
	}
	for i, id := range ids {
		if id != int64(i+6) {
			t.Fatalf("event %d has id %d, want %d", i, id, i+6)
		}
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	hub := NewHub(testTiming(), nil)

	_, cancel, done := subscribe(t, hub, "")
	defer cancel()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after Stop")
	}

	if err := hub.Publish(Event{Type: EventState}); err != nil {
		t.Errorf("Publish after Stop: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := hub.Subscribe(context.Background(), newWriter(), req); err == nil {
		t.Error("Subscribe after Stop should fail")
	}
}

func TestHeartbeat(t *testing.T) {
	cfg := testTiming()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.HeartbeatJitter = 5 * time.Millisecond
	hub := NewHub(cfg, nil)
	defer hub.Stop()

	w, cancel, _ := subscribe(t, hub, "")
	defer cancel()

	waitFor(t, func() bool { return strings.Contains(w.body(), "event: heartbeat") })
	if hub.buffer.Len() != 0 {
		t.Errorf("heartbeats must not be buffered, got %d", hub.buffer.Len())
	}
}

func TestEventBuffer(t *testing.T) {
	buffer := NewEventBuffer(3, 0)

	for i := 0; i < 5; i++ {
		ev := buffer.Add(Event{Type: EventCommand})
		if ev.ID != int64(i+1) {
			t.Errorf("event %d got ID %d", i, ev.ID)
		}
	}

	if buffer.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", buffer.Len())
	}
	events := buffer.EventsAfter(0)
	if len(events) != 3 || events[0].ID != 3 || events[2].ID != 5 {
		t.Errorf("unexpected retained events: %+v", events)
	}
	if got := buffer.EventsAfter(4); len(got) != 1 || got[0].ID != 5 {
		t.Errorf("EventsAfter(4) = %+v", got)
	}
	if got := buffer.EventsAfter(5); len(got) != 0 {
		t.Errorf("EventsAfter(5) = %+v", got)
	}
}

func TestEventBufferRetention(t *testing.T) {
	buffer := NewEventBuffer(10, 10*time.Millisecond)
	buffer.Add(Event{Type: EventState})

	time.Sleep(30 * time.Millisecond)
	buffer.Add(Event{Type: EventState})

	events := buffer.EventsAfter(0)
	if len(events) != 1 || events[0].ID != 2 {
		t.Errorf("expected only the fresh event, got %+v", events)
	}
}

func TestStatusFunc(t *testing.T) {
	var provider StatusProvider = StatusFunc(func() lander.Status { return lander.Status{State: lander.LandLow} })
	if got := provider.Status().State; got != lander.LandLow {
		t.Errorf("State = %v, want LAND_LOW", got)
	}
}
