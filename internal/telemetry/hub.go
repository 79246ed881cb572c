//
//
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/autoland/lander/internal/config"
	"github.com/autoland/lander/internal/lander"
)

// Event types sent to clients.
const (
	EventReady     = "ready"
	EventState     = "state"
	EventCommand   = "command"
	EventFault     = "fault"
	EventHeartbeat = "heartbeat"
)

// clientQueue is the per-client backlog before events are dropped for that client.
const clientQueue = 100

// Event is one SSE message.
type Event struct {
	ID   int64          `json:"id,omitempty"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// StatusProvider supplies the snapshot sent in the ready event.
type StatusProvider interface {
	Status() lander.Status
}

// StatusFunc adapts a function to StatusProvider.
type StatusFunc func() lander.Status

// Status calls f.
func (f StatusFunc) Status() lander.Status { return f() }

// Client is one connected SSE stream.
type Client struct {
	ID      string
	writer  http.ResponseWriter
	ctx     context.Context
	cancel  context.CancelFunc
	events  chan Event
	dropped atomic.Int64
	mu      sync.Mutex // serializes writes
}

// Hub fans events out to SSE clients.
//
// Publish holds h.mu across numbering and queueing, so every client queue receives
// events in ID order. Lock order: h.mu before EventBuffer.mu before Client.mu.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	buffer *EventBuffer
	status StatusProvider
	config *config.TimingConfig

	heartbeatStop chan struct{}
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewHub creates a hub. status may be nil, in which case the ready event has no snapshot.
func NewHub(cfg *config.TimingConfig, status StatusProvider) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(cfg.EventBufferSize, cfg.EventBufferRetention),
		status:  status,
		config:  cfg,
		done:    make(chan struct{}),
	}
}

// Subscribe streams events to w until ctx or the request is done.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:     uuid.NewString(),
		writer: w,
		ctx:    clientCtx,
		cancel: cancel,
		events: make(chan Event, clientQueue),
	}

	var lastEventID int64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastEventID = id
		}
	}

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		cancel()
		return fmt.Errorf("telemetry hub stopped")
	default:
	}
	h.clients[client.ID] = client
	if h.heartbeatStop == nil {
		h.startHeartbeat()
	}
	// Taken with the client registered: anything newer arrives through its queue.
	var replay []Event
	if lastEventID > 0 {
		replay = h.buffer.EventsAfter(lastEventID)
	}
	h.mu.Unlock()
	defer h.unregisterClient(client.ID)

	if err := h.sendEventToClient(client, h.readyEvent()); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	lastSent := lastEventID
	for _, event := range replay {
		if err := h.sendEventToClient(client, event); err != nil {
			return fmt.Errorf("failed to replay events: %w", err)
		}
		lastSent = event.ID
	}

	for {
		select {
		case <-client.ctx.Done():
			return nil
		case event := <-client.events:
			if event.ID > 0 && event.ID <= lastSent {
				continue
			}
			if err := h.sendEventToClient(client, event); err != nil {
				return nil
			}
			if event.ID > 0 {
				lastSent = event.ID
			}
		}
	}
}

// Publish buffers event under the next ID and queues it for every client. A client
// whose backlog is full misses the event; it can recover it by reconnecting with
// Last-Event-ID.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast(h.buffer.Add(event))
	return nil
}

// broadcast runs with h.mu held.
func (h *Hub) broadcast(event Event) {
	for _, client := range h.clients {
		select {
		case client.events <- event:
		default:
			client.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) readyEvent() Event {
	data := map[string]any{}
	if h.status != nil {
		data["snapshot"] = h.status.Status()
	}
	return Event{Type: EventReady, Data: data}
}

func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	if flusher, ok := client.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	client.cancel()
	delete(h.clients, clientID)

	if len(h.clients) == 0 && h.heartbeatStop != nil {
		close(h.heartbeatStop)
		h.heartbeatStop = nil
	}
}

// startHeartbeat runs with h.mu held.
func (h *Hub) startHeartbeat() {
	stop := make(chan struct{})
	h.heartbeatStop = stop

	interval := h.config.HeartbeatInterval
	jitter := h.config.HeartbeatJitter

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			// Spread reconnecting clients' heartbeats apart.
			wait := interval
			if jitter > 0 {
				wait += time.Duration(rand.Int64N(int64(2*jitter))) - jitter
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				h.mu.RLock()
				h.broadcast(Event{
					Type: EventHeartbeat,
					Data: map[string]any{"ts": time.Now().UTC().Format(time.RFC3339)},
				})
				h.mu.RUnlock()
			case <-stop:
				timer.Stop()
				return
			case <-h.done:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop disconnects every client and stops the heartbeat.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.cancel()
		}
		h.mu.Unlock()

		h.wg.Wait()
	})
}

// EventBuffer keeps the most recent events for Last-Event-ID replay.
type EventBuffer struct {
	mu        sync.Mutex
	events    []bufferedEvent
	capacity  int
	retention time.Duration
	nextID    int64
}

type bufferedEvent struct {
	event Event
	at    time.Time
}

// NewEventBuffer creates a buffer holding at most capacity events no older than
// retention. A zero retention keeps events until they are pushed out.
func NewEventBuffer(capacity int, retention time.Duration) *EventBuffer {
	return &EventBuffer{
		events:    make([]bufferedEvent, 0, capacity),
		capacity:  capacity,
		retention: retention,
		nextID:    1,
	}
}

// Add stores event under the next ID and returns it with the ID set.
func (b *EventBuffer) Add(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	event.ID = b.nextID
	b.nextID++

	b.events = append(b.events, bufferedEvent{event: event, at: time.Now()})
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
	return event
}

// EventsAfter returns retained events with an ID above lastID, oldest first.
func (b *EventBuffer) EventsAfter(lastID int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cutoff time.Time
	if b.retention > 0 {
		cutoff = time.Now().Add(-b.retention)
	}

	var result []Event
	for _, be := range b.events {
		if be.event.ID > lastID && be.at.After(cutoff) {
			result = append(result, be.event)
		}
	}
	return result
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Capacity returns the buffer capacity.
func (b *EventBuffer) Capacity() int {
	return b.capacity
}
